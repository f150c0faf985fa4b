package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/internal/conversation/ports"
	"dealerline_backend/internal/conversation/repository"
	"dealerline_backend/platform/apperr"
	"dealerline_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	conv        *domain.Context
	messages    []domain.Message
	getErr      error
	completeErr error
	matched     bool

	createdConv   *domain.Context
	createUnique  bool
	appended      []domain.Message
	turnUpdates   []repository.TurnUpdate
	savedMessages []domain.Message
	failedReasons []string
	jobFailures   []repository.JobFailure
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Context, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.conv, nil
}

func (f *fakeStore) GetByLeadID(ctx context.Context, leadID string) (*domain.Context, error) {
	return f.conv, nil
}

func (f *fakeStore) Create(ctx context.Context, c *domain.Context) (bool, error) {
	f.createdConv = c
	return f.createUnique, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, m domain.Message) error {
	f.appended = append(f.appended, m)
	return nil
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) CompleteTurn(ctx context.Context, update repository.TurnUpdate, messages []domain.Message) (bool, error) {
	if f.completeErr != nil {
		return false, f.completeErr
	}
	f.turnUpdates = append(f.turnUpdates, update)
	f.savedMessages = append(f.savedMessages, messages...)
	return f.matched, nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	f.failedReasons = append(f.failedReasons, reason)
	return nil
}

func (f *fakeStore) RecordJobFailure(ctx context.Context, jf repository.JobFailure) error {
	f.jobFailures = append(f.jobFailures, jf)
	return nil
}

type fakeAI struct {
	text   string
	tokens int
	err    error
	calls  int
}

func (f *fakeAI) Generate(ctx context.Context, params ports.GenerateParams) (ports.GenerateResult, error) {
	f.calls++
	if f.err != nil {
		return ports.GenerateResult{}, f.err
	}
	return ports.GenerateResult{Text: f.text, TokensUsed: f.tokens}, nil
}

type fakePrompts struct {
	renderedTurn    int
	renderedHistory []domain.Message
}

func (f *fakePrompts) Select(turn int) (ports.PromptTemplate, error) {
	return ports.PromptTemplate{ID: "tpl", Text: "prompt"}, nil
}

func (f *fakePrompts) Render(tpl ports.PromptTemplate, conv *domain.Context, turn int, history []domain.Message) (string, error) {
	f.renderedTurn = turn
	f.renderedHistory = history
	return tpl.Text, nil
}

type scheduled struct {
	conversationID uuid.UUID
	turn           int
	priority       int
	delay          time.Duration
}

type fakeScheduler struct {
	calls []scheduled
	err   error
}

func (f *fakeScheduler) ScheduleTurn(ctx context.Context, conversationID uuid.UUID, turn int, priority int, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, scheduled{conversationID, turn, priority, delay})
	return nil
}

type fakeRecorder struct {
	events []domain.MetricEvent
}

func (f *fakeRecorder) Record(ev domain.MetricEvent) {
	f.events = append(f.events, ev)
}

func activeConversation(currentTurn, maxTurns int) *domain.Context {
	return &domain.Context{
		ID:           uuid.New(),
		LeadID:       "lead-1",
		DealershipID: 42,
		CurrentTurn:  currentTurn,
		MaxTurns:     maxTurns,
		State:        domain.StateActive,
		AIModel:      "standard-model",
		Temperature:  0.7,
		Priority:     5,
	}
}

func newTestProcessor(store *fakeStore, ai *fakeAI, sched *fakeScheduler, rec *fakeRecorder, adaptive bool) *Processor {
	p := NewProcessor(store, ai, &fakePrompts{}, sched, nil, rec, logger.New("development"), adaptive)
	p.rand = func(time.Duration) time.Duration { return 0 }
	return p
}

const structuredReply = `{"message": "ok", "intent": "general_response", "confidence": 0.6, "sentiment": 0.8}`

func TestProcessTurnContinues(t *testing.T) {
	conv := activeConversation(0, 3)
	store := &fakeStore{conv: conv, matched: true}
	ai := &fakeAI{text: structuredReply, tokens: 50}
	sched := &fakeScheduler{}
	rec := &fakeRecorder{}
	p := newTestProcessor(store, ai, sched, rec, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.turnUpdates) != 1 {
		t.Fatalf("expected one turn update, got %d", len(store.turnUpdates))
	}
	update := store.turnUpdates[0]
	if update.ExpectedTurn != 0 || update.NewTurn != 1 || update.NewState != domain.StateActive {
		t.Fatalf("unexpected update: %+v", update)
	}

	if len(store.savedMessages) != 1 {
		t.Fatalf("expected assistant message persisted")
	}
	msg := store.savedMessages[0]
	if msg.Role != domain.RoleAssistant || msg.TurnNumber != 1 || msg.Content != "ok" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Metadata.TokensUsed != 50 || msg.Metadata.Intent != "general_response" {
		t.Fatalf("unexpected message metadata: %+v", msg.Metadata)
	}

	if len(sched.calls) != 1 {
		t.Fatalf("expected next turn scheduled")
	}
	next := sched.calls[0]
	// Zeroed jitter draw lands at the 10s floor of the 30s +/- 20s window.
	if next.turn != 2 || next.priority != conv.Priority || next.delay != 10*time.Second {
		t.Fatalf("unexpected schedule: %+v", next)
	}
}

func TestProcessTurnRendersWithHistory(t *testing.T) {
	conv := activeConversation(0, 3)
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "Is it still available?", TurnNumber: 0},
	}
	store := &fakeStore{conv: conv, messages: history, matched: true}
	prompts := &fakePrompts{}
	p := NewProcessor(store, &fakeAI{text: structuredReply}, prompts, &fakeScheduler{}, nil, &fakeRecorder{}, logger.New("development"), false)
	p.rand = func(time.Duration) time.Duration { return 0 }

	if err := p.ProcessTurn(context.Background(), conv.ID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prompts.renderedTurn != 1 {
		t.Fatalf("expected turn number passed to render, got %d", prompts.renderedTurn)
	}
	if len(prompts.renderedHistory) != 1 || prompts.renderedHistory[0].Content != "Is it still available?" {
		t.Fatalf("expected prior messages passed to render, got %+v", prompts.renderedHistory)
	}
}

func TestProcessTurnEscalatesOnEscalateFlag(t *testing.T) {
	conv := activeConversation(0, 5)
	store := &fakeStore{conv: conv, matched: true}
	sched := &fakeScheduler{}
	p := newTestProcessor(store, &fakeAI{
		text: `{"escalate": true, "escalation_reason": "human_request"}`,
	}, sched, &fakeRecorder{}, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	update := store.turnUpdates[0]
	if update.NewState != domain.StateEscalated {
		t.Fatalf("expected escalated on turn 1 of 5, got %s", update.NewState)
	}
	if update.EscalationReason == nil || *update.EscalationReason != "human_request" {
		t.Fatalf("expected escalation reason carried, got %+v", update.EscalationReason)
	}
	if len(sched.calls) != 0 {
		t.Fatalf("escalated conversation must not schedule turn 2")
	}
}

func TestProcessTurnRecordsUsageFromReply(t *testing.T) {
	conv := activeConversation(0, 3)
	store := &fakeStore{conv: conv, matched: true}
	rec := &fakeRecorder{}
	// Backend reports no token count; the reply carries its own usage.
	p := newTestProcessor(store, &fakeAI{
		text: `{"message": "ok", "tokens_used": 180, "cost": 0.0042}`,
	}, &fakeScheduler{}, rec, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	meta := store.savedMessages[0].Metadata
	if meta.TokensUsed != 180 || meta.CostUSD != 0.0042 {
		t.Fatalf("expected usage from reply in metadata, got %+v", meta)
	}

	var turnEvent *domain.MetricEvent
	for i := range rec.events {
		if rec.events[i].EventType == domain.MetricTurnCompleted {
			turnEvent = &rec.events[i]
		}
	}
	if turnEvent == nil {
		t.Fatalf("expected turn_completed metric event")
	}
	if turnEvent.TokensUsed != 180 || turnEvent.CostUSD != 0.0042 {
		t.Fatalf("expected usage in metric event, got %+v", turnEvent)
	}
}

func TestProcessTurnCompletesAtBudget(t *testing.T) {
	conv := activeConversation(1, 2)
	store := &fakeStore{conv: conv, matched: true}
	sched := &fakeScheduler{}
	rec := &fakeRecorder{}
	p := newTestProcessor(store, &fakeAI{text: structuredReply}, sched, rec, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.turnUpdates[0].NewState != domain.StateCompleted {
		t.Fatalf("expected completed state, got %s", store.turnUpdates[0].NewState)
	}
	if len(sched.calls) != 0 {
		t.Fatalf("completed conversation must not schedule another turn")
	}

	var sawCompleted bool
	for _, ev := range rec.events {
		if ev.EventType == domain.MetricConversationCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Fatalf("expected conversation_completed metric event")
	}
}

func TestProcessTurnEscalatesOnReason(t *testing.T) {
	conv := activeConversation(0, 5)
	store := &fakeStore{conv: conv, matched: true}
	sched := &fakeScheduler{}
	p := newTestProcessor(store, &fakeAI{
		text: `{"message": "Connecting you now.", "intent": "human_request", "confidence": 0.9, "sentiment": 0.5, "escalation_reason": "legal question"}`,
	}, sched, &fakeRecorder{}, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	update := store.turnUpdates[0]
	if update.NewState != domain.StateEscalated {
		t.Fatalf("expected escalated state, got %s", update.NewState)
	}
	if update.EscalationReason == nil || *update.EscalationReason != "legal question" {
		t.Fatalf("expected escalation reason carried, got %+v", update.EscalationReason)
	}
	if len(sched.calls) != 0 {
		t.Fatalf("escalated conversation must not schedule another turn")
	}
}

func TestProcessTurnSkipsTerminalConversation(t *testing.T) {
	conv := activeConversation(2, 2)
	conv.State = domain.StateCompleted
	ai := &fakeAI{text: structuredReply}
	store := &fakeStore{conv: conv}
	p := newTestProcessor(store, ai, &fakeScheduler{}, &fakeRecorder{}, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 3); err != nil {
		t.Fatalf("terminal skip must not error: %v", err)
	}
	if ai.calls != 0 {
		t.Fatalf("terminal conversation must not call the backend")
	}
}

func TestProcessTurnDefersPausedConversation(t *testing.T) {
	conv := activeConversation(1, 5)
	conv.State = domain.StatePaused
	ai := &fakeAI{text: structuredReply}
	sched := &fakeScheduler{}
	p := newTestProcessor(&fakeStore{conv: conv}, ai, sched, &fakeRecorder{}, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ai.calls != 0 {
		t.Fatalf("paused conversation must not call the backend")
	}
	if len(sched.calls) != 1 || sched.calls[0].turn != 2 {
		t.Fatalf("expected same turn re-scheduled, got %+v", sched.calls)
	}
	if sched.calls[0].delay <= 0 {
		t.Fatalf("expected deferred delay, got %v", sched.calls[0].delay)
	}
}

func TestProcessTurnSkipsStaleJob(t *testing.T) {
	conv := activeConversation(2, 5)
	ai := &fakeAI{text: structuredReply}
	store := &fakeStore{conv: conv, matched: true}
	p := newTestProcessor(store, ai, &fakeScheduler{}, &fakeRecorder{}, false)

	// Turn 2 already processed; redelivered job is a no-op.
	if err := p.ProcessTurn(context.Background(), conv.ID, 2); err != nil {
		t.Fatalf("stale job must not error: %v", err)
	}
	if ai.calls != 0 || len(store.turnUpdates) != 0 {
		t.Fatalf("stale job must not touch backend or store")
	}
}

func TestProcessTurnDropsLostRace(t *testing.T) {
	conv := activeConversation(0, 3)
	store := &fakeStore{conv: conv, matched: false}
	sched := &fakeScheduler{}
	p := newTestProcessor(store, &fakeAI{text: structuredReply}, sched, &fakeRecorder{}, false)

	if err := p.ProcessTurn(context.Background(), conv.ID, 1); err != nil {
		t.Fatalf("lost race must not error: %v", err)
	}
	if len(sched.calls) != 0 {
		t.Fatalf("lost race must not schedule the next turn")
	}
}

func TestProcessTurnPropagatesBackendError(t *testing.T) {
	conv := activeConversation(0, 3)
	store := &fakeStore{conv: conv, matched: true}
	backendErr := apperr.Transient("ai generation failed", errors.New("upstream 503"))
	p := newTestProcessor(store, &fakeAI{err: backendErr}, &fakeScheduler{}, &fakeRecorder{}, false)

	err := p.ProcessTurn(context.Background(), conv.ID, 1)
	if err == nil {
		t.Fatalf("expected backend error to propagate")
	}
	if apperr.GetKind(err) != apperr.KindTransient {
		t.Fatalf("expected transient kind, got %v", apperr.GetKind(err))
	}
	if len(store.turnUpdates) != 0 {
		t.Fatalf("failed generation must not write a turn")
	}
}

func TestProcessTurnDropsUnknownConversation(t *testing.T) {
	store := &fakeStore{getErr: apperr.NotFound("conversation not found")}
	p := newTestProcessor(store, &fakeAI{text: structuredReply}, &fakeScheduler{}, &fakeRecorder{}, false)

	if err := p.ProcessTurn(context.Background(), uuid.New(), 1); err != nil {
		t.Fatalf("unknown conversation must be dropped without error: %v", err)
	}
}

func TestHandleFinalFailure(t *testing.T) {
	conv := activeConversation(1, 5)
	store := &fakeStore{conv: conv}
	rec := &fakeRecorder{}
	p := newTestProcessor(store, &fakeAI{}, &fakeScheduler{}, rec, false)

	cause := apperr.Transient("ai generation failed", errors.New("timeout"))
	p.HandleFinalFailure(context.Background(), conv.ID, 2, 4, cause)

	if len(store.failedReasons) != 1 {
		t.Fatalf("expected conversation marked failed")
	}
	if len(store.jobFailures) != 1 {
		t.Fatalf("expected job failure recorded")
	}
	jf := store.jobFailures[0]
	if !jf.Final || jf.TurnNumber != 2 || jf.Attempt != 4 || jf.ErrorKind != "transient" {
		t.Fatalf("unexpected job failure: %+v", jf)
	}
	if len(rec.events) != 1 || rec.events[0].EventType != domain.MetricConversationFailed {
		t.Fatalf("expected conversation_failed metric event")
	}
}
