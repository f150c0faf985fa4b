// Package engine implements the conversation turn processor: the unit of
// work that generates one AI reply, persists it, and decides what happens
// next.
package engine

import (
	"context"
	"fmt"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/internal/conversation/ports"
	"dealerline_backend/internal/conversation/repository"
	"dealerline_backend/internal/events"
	"dealerline_backend/platform/apperr"
	"dealerline_backend/platform/logger"
	"dealerline_backend/platform/metrics"

	"github.com/google/uuid"
)

// Store is the persistence surface the processor needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Context, error)
	GetByLeadID(ctx context.Context, leadID string) (*domain.Context, error)
	Create(ctx context.Context, c *domain.Context) (bool, error)
	AppendMessage(ctx context.Context, m domain.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error)
	CompleteTurn(ctx context.Context, update repository.TurnUpdate, messages []domain.Message) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	RecordJobFailure(ctx context.Context, f repository.JobFailure) error
}

// TurnScheduler enqueues turn jobs. Implemented by the scheduler client.
type TurnScheduler interface {
	ScheduleTurn(ctx context.Context, conversationID uuid.UUID, turn int, priority int, delay time.Duration) error
}

// MetricRecorder buffers engine metric events. Implemented by the aggregator.
type MetricRecorder interface {
	Record(ev domain.MetricEvent)
}

// Processor runs conversation turns.
type Processor struct {
	store    Store
	ai       ports.AIBackend
	prompts  ports.PromptSelector
	sched    TurnScheduler
	eventBus events.Bus
	recorder MetricRecorder
	log      *logger.Logger

	adaptive bool
	rand     domain.RandFn
}

// NewProcessor creates a turn processor. The adaptive flag is read once here;
// in-flight conversations keep the behavior they started with.
func NewProcessor(
	store Store,
	ai ports.AIBackend,
	prompts ports.PromptSelector,
	sched TurnScheduler,
	eventBus events.Bus,
	recorder MetricRecorder,
	log *logger.Logger,
	adaptive bool,
) *Processor {
	return &Processor{
		store:    store,
		ai:       ai,
		prompts:  prompts,
		sched:    sched,
		eventBus: eventBus,
		recorder: recorder,
		log:      log,
		adaptive: adaptive,
		rand:     domain.DefaultRand,
	}
}

// ProcessTurn executes one turn job. Returned errors are classified: the
// queue retries transient and persistence failures, and drops validation
// failures without retrying. A job that finds the conversation already
// advanced or terminal is a successful no-op, never an error.
func (p *Processor) ProcessTurn(ctx context.Context, conversationID uuid.UUID, turn int) error {
	log := p.log.WithConversationID(conversationID.String())

	conv, err := p.store.GetByID(ctx, conversationID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.Warn("turn job for unknown conversation, dropping", "turn", turn)
			return nil
		}
		return apperr.Persistence("failed to load conversation", err)
	}

	// Runtime guards. Redelivered and duplicate jobs land here.
	if conv.State.Terminal() {
		log.Info("conversation already terminal, skipping turn", "state", conv.State, "turn", turn)
		return nil
	}
	if conv.State == domain.StatePaused {
		delay := domain.NextTurnDelay(domain.IntentGeneralResponse, 1.0, p.rand)
		log.Info("conversation paused, deferring turn", "turn", turn, "delay", delay)
		return p.sched.ScheduleTurn(ctx, conv.ID, turn, conv.Priority, delay)
	}
	if turn != conv.CurrentTurn+1 {
		log.Info("stale turn job, skipping", "jobTurn", turn, "currentTurn", conv.CurrentTurn)
		return nil
	}

	history, err := p.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return apperr.Persistence("failed to load conversation history", err)
	}

	tpl, err := p.prompts.Select(turn)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to select prompt template", err)
	}
	prompt, err := p.prompts.Render(tpl, conv, turn, history)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to render prompt", err)
	}

	started := time.Now()
	result, err := p.ai.Generate(ctx, ports.GenerateParams{
		Model:       conv.AIModel,
		Temperature: conv.Temperature,
		Prompt:      prompt,
		History:     historyTurns(history),
	})
	elapsed := time.Since(started)
	if err != nil {
		metrics.RecordAICall(conv.AIModel, "error", elapsed.Seconds(), 0)
		metrics.TurnsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.RecordAICall(conv.AIModel, "ok", elapsed.Seconds(), result.TokensUsed)

	resp := DecodeResponse(result.Text)
	tokens := result.TokensUsed
	if tokens == 0 {
		tokens = resp.TokensUsed
	}
	if tokens == 0 {
		tokens = EstimateTokens(resp.Message)
	}

	outcome := resp.Outcome()
	action := domain.DecideNextAction(turn, conv.MaxTurns, p.adaptive, outcome)
	newState := action.NextState()

	var escalationReason *string
	if action == domain.ActionEscalate {
		reason := outcome.EscalationReason
		if reason == "" {
			reason = escalationReasonFor(outcome, turn)
		}
		escalationReason = &reason
	}

	processingMS := elapsed.Milliseconds()
	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        resp.Message,
		TurnNumber:     turn,
		Metadata: domain.MessageMetadata{
			Model:            conv.AIModel,
			PromptTemplateID: tpl.ID,
			ProcessingMS:     processingMS,
			Confidence:       resp.Confidence,
			Intent:           resp.Intent,
			Sentiment:        resp.Sentiment,
			TokensUsed:       tokens,
			CostUSD:          resp.CostUSD,
		},
		CreatedAt: time.Now().UTC(),
	}

	matched, err := p.store.CompleteTurn(ctx, repository.TurnUpdate{
		ConversationID:   conv.ID,
		ExpectedTurn:     conv.CurrentTurn,
		NewTurn:          turn,
		NewState:         newState,
		EscalationReason: escalationReason,
	}, []domain.Message{message})
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("failed").Inc()
		return err
	}
	if !matched {
		log.Info("turn already advanced by another worker, dropping result", "turn", turn)
		return nil
	}

	metrics.TurnsTotal.WithLabelValues("completed").Inc()
	log.TurnProcessed(conv.ID.String(), turn, string(action), processingMS)

	p.publishTurnCompleted(ctx, conv, turn, resp, tokens, processingMS)

	switch action {
	case domain.ActionContinue:
		delay := domain.NextTurnDelay(resp.Intent, resp.Sentiment, p.rand)
		if err := p.sched.ScheduleTurn(ctx, conv.ID, turn+1, conv.Priority, delay); err != nil {
			return apperr.Transient("failed to schedule next turn", err)
		}
	case domain.ActionComplete:
		metrics.ConversationsTotal.WithLabelValues("completed").Inc()
		p.publish(ctx, events.ConversationCompleted{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			DealershipID:   conv.DealershipID,
			TotalTurns:     turn,
		})
		p.record(domain.MetricConversationCompleted, conv, turn, 0, 0, 0, resp)
	case domain.ActionEscalate:
		metrics.ConversationsTotal.WithLabelValues("escalated").Inc()
		p.publish(ctx, events.ConversationEscalated{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			DealershipID:   conv.DealershipID,
			TurnNumber:     turn,
			Reason:         *escalationReason,
		})
		p.record(domain.MetricConversationEscalated, conv, turn, 0, 0, 0, resp)
	}

	return nil
}

// HandleFinalFailure marks a conversation failed after the retry budget is
// exhausted. Called from the queue's error handler on the last attempt.
func (p *Processor) HandleFinalFailure(ctx context.Context, conversationID uuid.UUID, turn, attempt int, cause error) {
	log := p.log.WithConversationID(conversationID.String())
	reason := fmt.Sprintf("turn %d failed after %d attempts: %v", turn, attempt, cause)

	if err := p.store.MarkFailed(ctx, conversationID, reason); err != nil {
		log.Error("failed to mark conversation failed", "error", err)
	}
	if err := p.store.RecordJobFailure(ctx, repository.JobFailure{
		ConversationID: conversationID,
		TurnNumber:     turn,
		Attempt:        attempt,
		Final:          true,
		ErrorKind:      kindLabel(cause),
		ErrorMessage:   cause.Error(),
	}); err != nil {
		log.Error("failed to record job failure", "error", err)
	}

	metrics.ConversationsTotal.WithLabelValues("failed").Inc()
	p.publish(ctx, events.ConversationFailed{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		TurnNumber:     turn,
		Reason:         reason,
	})
	if p.recorder != nil {
		p.recorder.Record(domain.MetricEvent{
			ID:             uuid.New(),
			ConversationID: conversationID,
			EventType:      domain.MetricConversationFailed,
			TurnNumber:     turn,
			OccurredAt:     time.Now().UTC(),
		})
	}
	log.Error("conversation failed terminally", "turn", turn, "attempt", attempt, "error", cause)
}

// RecordAttemptFailure keeps an audit row for a non-final failed attempt.
func (p *Processor) RecordAttemptFailure(ctx context.Context, conversationID uuid.UUID, turn, attempt int, cause error) {
	if err := p.store.RecordJobFailure(ctx, repository.JobFailure{
		ConversationID: conversationID,
		TurnNumber:     turn,
		Attempt:        attempt,
		ErrorKind:      kindLabel(cause),
		ErrorMessage:   cause.Error(),
	}); err != nil {
		p.log.Error("failed to record attempt failure", "conversationId", conversationID, "error", err)
	}
	p.publish(ctx, events.TurnFailed{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		TurnNumber:     turn,
		Attempt:        attempt,
		ErrorKind:      kindLabel(cause),
		ErrorMessage:   cause.Error(),
	})
}

func (p *Processor) publishTurnCompleted(ctx context.Context, conv *domain.Context, turn int, resp TurnResponse, tokens int, processingMS int64) {
	p.publish(ctx, events.TurnCompleted{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		DealershipID:   conv.DealershipID,
		TurnNumber:     turn,
		Intent:         resp.Intent,
		Sentiment:      resp.Sentiment,
		TokensUsed:     tokens,
		ProcessingMS:   processingMS,
	})
	p.record(domain.MetricTurnCompleted, conv, turn, tokens, resp.CostUSD, processingMS, resp)
}

func (p *Processor) record(eventType domain.MetricEventType, conv *domain.Context, turn, tokens int, cost float64, processingMS int64, resp TurnResponse) {
	if p.recorder == nil {
		return
	}
	p.recorder.Record(domain.MetricEvent{
		ID:             uuid.New(),
		DealershipID:   conv.DealershipID,
		ConversationID: conv.ID,
		EventType:      eventType,
		TurnNumber:     turn,
		TokensUsed:     tokens,
		CostUSD:        cost,
		ProcessingMS:   processingMS,
		Sentiment:      resp.Sentiment,
		Intent:         resp.Intent,
		OccurredAt:     time.Now().UTC(),
	})
}

func (p *Processor) publish(ctx context.Context, ev events.Event) {
	if p.eventBus != nil {
		p.eventBus.Publish(ctx, ev)
	}
}

func historyTurns(messages []domain.Message) []ports.HistoryTurn {
	turns := make([]ports.HistoryTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, ports.HistoryTurn{Role: string(m.Role), Text: m.Content})
	}
	return turns
}

func escalationReasonFor(outcome domain.TurnOutcome, turn int) string {
	if outcome.Intent == domain.IntentHumanRequest {
		return "customer requested a human"
	}
	if outcome.Sentiment < domain.LowEngagementSentiment {
		return fmt.Sprintf("low engagement after %d turns", turn)
	}
	return "escalated by conversation rules"
}

func kindLabel(err error) string {
	switch apperr.GetKind(err) {
	case apperr.KindTransient:
		return "transient"
	case apperr.KindUnavailable:
		return "circuit_open"
	case apperr.KindValidation:
		return "validation"
	case apperr.KindPersistence:
		return "persistence"
	case apperr.KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
