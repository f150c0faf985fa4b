package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerline_backend/platform/apperr"
	"dealerline_backend/platform/config"
	"dealerline_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TurnProcessor is the engine surface the worker drives.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, conversationID uuid.UUID, turn int) error
	RecordAttemptFailure(ctx context.Context, conversationID uuid.UUID, turn, attempt int, cause error)
	HandleFinalFailure(ctx context.Context, conversationID uuid.UUID, turn, attempt int, cause error)
}

// Worker consumes turn jobs from the priority queues.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor TurnProcessor
	log       *logger.Logger
}

func NewWorker(cfg config.QueueConfig, processor TurnProcessor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetWorkerConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	w := &Worker{
		processor: processor,
		log:       log.WithComponent("turn_worker"),
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         QueueWeights,
		RetryDelayFunc: retryDelay,
		ErrorHandler:   asynq.ErrorHandlerFunc(w.handleError),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskConversationTurn, w.handleConversationTurn)

	w.server = server
	w.mux = mux
	return w, nil
}

// handleConversationTurn runs one turn. Non-retryable failures are wrapped
// with SkipRetry so asynq archives them instead of burning attempts.
func (w *Worker) handleConversationTurn(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseConversationTurnPayload(task)
	if err != nil {
		return fmt.Errorf("malformed turn payload: %v: %w", err, asynq.SkipRetry)
	}

	conversationID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id %q: %w", payload.ConversationID, asynq.SkipRetry)
	}

	if err := w.processor.ProcessTurn(ctx, conversationID, payload.Turn); err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && !appErr.Retryable() {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// retryDelay backs off exponentially from 5s, capped at 5m. A circuit-open
// rejection waits a full minute so retries land after the cooldown window.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	if apperr.Is(err, apperr.KindUnavailable) {
		return time.Minute
	}
	delay := 5 * time.Second << uint(n)
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}

// handleError records every failed attempt and escalates to terminal failure
// handling when the retry budget is spent.
func (w *Worker) handleError(ctx context.Context, task *asynq.Task, err error) {
	if task.Type() != TaskConversationTurn {
		return
	}

	payload, perr := ParseConversationTurnPayload(task)
	if perr != nil {
		w.log.Error("failed task has malformed payload", "error", perr)
		return
	}
	conversationID, perr := uuid.Parse(payload.ConversationID)
	if perr != nil {
		w.log.Error("failed task has invalid conversation id", "conversationId", payload.ConversationID)
		return
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	attempt := retried + 1
	final := retried >= maxRetry || errors.Is(err, asynq.SkipRetry)

	if final {
		w.processor.HandleFinalFailure(ctx, conversationID, payload.Turn, attempt, err)
		return
	}

	w.log.Warn("turn attempt failed, will retry",
		"conversationId", conversationID,
		"turn", payload.Turn,
		"attempt", attempt,
		"maxRetry", maxRetry,
		"error", err,
	)
	w.processor.RecordAttemptFailure(ctx, conversationID, payload.Turn, attempt, err)
}

// Run serves until the context is cancelled, then drains in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("turn worker stopped", "error", err)
		return err
	}
	return ctx.Err()
}
