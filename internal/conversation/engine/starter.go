package engine

import (
	"context"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/internal/events"
	"dealerline_backend/platform/apperr"
	"dealerline_backend/platform/logger"
	"dealerline_backend/platform/metrics"
	"dealerline_backend/platform/phone"
	"dealerline_backend/platform/sanitize"
	"dealerline_backend/platform/validator"

	"github.com/google/uuid"
)

// Starter turns inbound lead events into conversations. One conversation per
// lead: a duplicate event is acknowledged without creating anything.
type Starter struct {
	store    Store
	sched    TurnScheduler
	eventBus events.Bus
	recorder MetricRecorder
	validate *validator.Validator
	log      *logger.Logger

	rules domain.Rules
	rand  domain.RandFn
}

// NewStarter creates a conversation starter. The rule table is frozen here;
// config changes require a restart to take effect.
func NewStarter(
	store Store,
	sched TurnScheduler,
	eventBus events.Bus,
	recorder MetricRecorder,
	validate *validator.Validator,
	log *logger.Logger,
	rules domain.Rules,
) *Starter {
	return &Starter{
		store:    store,
		sched:    sched,
		eventBus: eventBus,
		recorder: recorder,
		validate: validate,
		log:      log,
		rules:    rules,
		rand:     domain.DefaultRand,
	}
}

// Start validates a lead event, creates the conversation, and schedules its
// first turn. Validation failures are returned as non-retryable errors so the
// consumer can acknowledge the poison message.
func (s *Starter) Start(ctx context.Context, ev domain.LeadEvent) error {
	if err := s.validate.Struct(ev); err != nil {
		metrics.LeadsConsumed.WithLabelValues("invalid").Inc()
		return apperr.Wrap(apperr.KindValidation, "invalid lead event", err)
	}

	customerPhone := phone.NormalizeE164(ev.Customer.Phone)

	// Form-sourced fields are stored and rendered into prompts.
	customerName := sanitize.Text(ev.Customer.Name)
	comments := sanitize.Text(ev.Comments)

	now := time.Now().UTC()
	conv := &domain.Context{
		ID:           uuid.New(),
		LeadID:       ev.ID,
		DealershipID: ev.DealershipID,
		CurrentTurn:  0,
		MaxTurns:     s.rules.SelectMaxTurns(ev),
		State:        domain.StateActive,
		AIModel:      s.rules.SelectModel(ev),
		Temperature:  s.rules.SelectTemperature(ev),
		Priority:     s.rules.ScorePriority(ev),
		Metadata: domain.Metadata{
			Source:        ev.Source,
			CustomerName:  customerName,
			CustomerPhone: customerPhone,
			CustomerEmail: ev.Customer.Email,
			VehicleModel:  ev.Vehicle.Model,
			VehiclePrice:  ev.Vehicle.Price,
			Comments:      comments,
			SessionData:   ev.Metadata.SessionData,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.store.Create(ctx, conv)
	if err != nil {
		metrics.LeadsConsumed.WithLabelValues("error").Inc()
		return err
	}
	if !created {
		metrics.LeadsConsumed.WithLabelValues("duplicate").Inc()
		s.log.Info("conversation already exists for lead, skipping", "leadId", ev.ID)
		return nil
	}

	if comments != "" {
		seed := domain.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Role:           domain.RoleUser,
			Content:        comments,
			TurnNumber:     0,
			CreatedAt:      now,
		}
		if err := s.store.AppendMessage(ctx, seed); err != nil {
			// Conversation row exists; the first turn can still run without
			// the seed message.
			s.log.Error("failed to persist inbound lead message", "leadId", ev.ID, "error", err)
		}
	}

	delay := domain.InitialTurnDelay(conv.Priority, s.rand)
	if err := s.sched.ScheduleTurn(ctx, conv.ID, 1, conv.Priority, delay); err != nil {
		return apperr.Transient("failed to schedule first turn", err)
	}

	metrics.LeadsConsumed.WithLabelValues("started").Inc()
	s.log.Info("conversation started",
		"conversationId", conv.ID,
		"leadId", ev.ID,
		"dealershipId", ev.DealershipID,
		"priority", conv.Priority,
		"model", conv.AIModel,
		"maxTurns", conv.MaxTurns,
		"initialDelay", delay,
	)

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.ConversationStarted{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			LeadID:         ev.ID,
			DealershipID:   ev.DealershipID,
			Priority:       conv.Priority,
			AIModel:        conv.AIModel,
			MaxTurns:       conv.MaxTurns,
		})
	}
	if s.recorder != nil {
		s.recorder.Record(domain.MetricEvent{
			ID:             uuid.New(),
			DealershipID:   ev.DealershipID,
			ConversationID: conv.ID,
			EventType:      domain.MetricConversationStarted,
			OccurredAt:     now,
		})
	}

	return nil
}
