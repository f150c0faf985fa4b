package engine

import (
	"context"
	"testing"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/platform/apperr"
	"dealerline_backend/platform/logger"
	"dealerline_backend/platform/validator"
)

func testRules() domain.Rules {
	return domain.Rules{
		HighValuePrice:      50000,
		EngagementThreshold: 120 * time.Second,
		DefaultModel:        "standard-model",
		HighCapabilityModel: "capable-model",
		AdaptiveMode:        true,
		MaxTurnsCap:         10,
	}
}

func newTestStarter(store *fakeStore, sched *fakeScheduler, rec *fakeRecorder) *Starter {
	s := NewStarter(store, sched, nil, rec, validator.New(), logger.New("development"), testRules())
	s.rand = func(time.Duration) time.Duration { return 0 }
	return s
}

func validLead() domain.LeadEvent {
	ev := domain.LeadEvent{
		ID:           "lead-99",
		DealershipID: 7,
		Source:       "web",
		Comments:     "Is the hybrid still available?",
	}
	ev.Customer.Name = "Jamie Doe"
	ev.Customer.Phone = "+31612345678"
	ev.Vehicle.Model = "RAV4 Hybrid"
	ev.Vehicle.Price = 42000
	return ev
}

func TestStartCreatesConversationAndSchedulesFirstTurn(t *testing.T) {
	store := &fakeStore{createUnique: true}
	sched := &fakeScheduler{}
	rec := &fakeRecorder{}
	s := newTestStarter(store, sched, rec)

	if err := s.Start(context.Background(), validLead()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conv := store.createdConv
	if conv == nil {
		t.Fatalf("expected conversation created")
	}
	if conv.LeadID != "lead-99" || conv.DealershipID != 7 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if conv.MaxTurns != domain.DefaultMaxTurns || conv.CurrentTurn != 0 {
		t.Fatalf("unexpected turn setup: %+v", conv)
	}
	if conv.AIModel != "standard-model" || conv.Temperature != 0.7 {
		t.Fatalf("unexpected model selection: %s %v", conv.AIModel, conv.Temperature)
	}

	if len(store.appended) != 1 {
		t.Fatalf("expected lead comments seeded as message")
	}
	seed := store.appended[0]
	if seed.Role != domain.RoleUser || seed.TurnNumber != 0 {
		t.Fatalf("unexpected seed message: %+v", seed)
	}

	if len(sched.calls) != 1 {
		t.Fatalf("expected first turn scheduled")
	}
	first := sched.calls[0]
	if first.turn != 1 || first.delay != 5*time.Second {
		t.Fatalf("expected turn 1 with 5s floor delay, got %+v", first)
	}

	if len(rec.events) != 1 || rec.events[0].EventType != domain.MetricConversationStarted {
		t.Fatalf("expected conversation_started metric event")
	}
}

func TestStartHighPriorityLeadIsImmediate(t *testing.T) {
	store := &fakeStore{createUnique: true}
	sched := &fakeScheduler{}
	s := newTestStarter(store, sched, &fakeRecorder{})

	ev := validLead()
	ev.Comments = "Need this today, call me ASAP"
	ev.Vehicle.Price = 60000

	if err := s.Start(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conv := store.createdConv
	if conv.Priority < domain.HighPriorityThreshold {
		t.Fatalf("expected high priority, got %d", conv.Priority)
	}
	if sched.calls[0].delay != 0 {
		t.Fatalf("expected immediate first turn, got %v", sched.calls[0].delay)
	}
}

func TestStartRejectsInvalidLead(t *testing.T) {
	store := &fakeStore{createUnique: true}
	sched := &fakeScheduler{}
	s := newTestStarter(store, sched, &fakeRecorder{})

	ev := validLead()
	ev.Customer.Name = ""

	err := s.Start(context.Background(), ev)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %v", apperr.GetKind(err))
	}
	if store.createdConv != nil || len(sched.calls) != 0 {
		t.Fatalf("invalid lead must not create or schedule")
	}
}

func TestStartDuplicateLeadIsNoOp(t *testing.T) {
	store := &fakeStore{createUnique: false}
	sched := &fakeScheduler{}
	s := newTestStarter(store, sched, &fakeRecorder{})

	if err := s.Start(context.Background(), validLead()); err != nil {
		t.Fatalf("duplicate lead must not error: %v", err)
	}
	if len(sched.calls) != 0 {
		t.Fatalf("duplicate lead must not schedule a turn")
	}
	if len(store.appended) != 0 {
		t.Fatalf("duplicate lead must not append messages")
	}
}

func TestStartSanitizesFormFields(t *testing.T) {
	store := &fakeStore{createUnique: true}
	s := newTestStarter(store, &fakeScheduler{}, &fakeRecorder{})

	ev := validLead()
	ev.Customer.Name = "<b>Jamie</b>"
	ev.Comments = "Need a <script>x</script>quote"

	if err := s.Start(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conv := store.createdConv
	if conv.Metadata.CustomerName != "Jamie" {
		t.Fatalf("expected HTML stripped from name, got %q", conv.Metadata.CustomerName)
	}
	if conv.Metadata.Comments != "Need a xquote" {
		t.Fatalf("expected HTML stripped from comments, got %q", conv.Metadata.Comments)
	}
	if store.appended[0].Content != "Need a xquote" {
		t.Fatalf("seed message must use sanitized comments, got %q", store.appended[0].Content)
	}
}

func TestStartPremiumLeadUsesCapableModel(t *testing.T) {
	store := &fakeStore{createUnique: true}
	s := newTestStarter(store, &fakeScheduler{}, &fakeRecorder{})

	ev := validLead()
	ev.Metadata.PremiumDealership = true
	ev.Metadata.InquiryType = "specific"

	if err := s.Start(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conv := store.createdConv
	if conv.AIModel != "capable-model" {
		t.Fatalf("expected capable model for premium dealership, got %s", conv.AIModel)
	}
	if conv.Temperature != 0.3 {
		t.Fatalf("expected precise temperature for specific inquiry, got %v", conv.Temperature)
	}
}
