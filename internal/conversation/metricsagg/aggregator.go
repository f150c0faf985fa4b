// Package metricsagg buffers engine metric events and maintains the
// in-memory rollups behind the ops API's health and metrics endpoints.
package metricsagg

import (
	"context"
	"sync"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/platform/logger"
)

// MetricStore is the durable sink for flushed batches.
type MetricStore interface {
	InsertMetricEvents(ctx context.Context, events []domain.MetricEvent) error
}

// Config sets the aggregator's buffering behavior.
type Config struct {
	BufferSize    int           // events that trigger an early flush
	FlushInterval time.Duration // maximum time an event sits unflushed
}

type dayKey struct {
	dealershipID int64
	day          string // YYYY-MM-DD in UTC
}

// Aggregator collects metric events from the engine. Events are buffered and
// written to the store in batches; a failed flush puts the batch back so
// nothing is lost while the store is down. Independently of flushing, every
// event updates a per-dealership-day rollup that survives for the process
// lifetime.
type Aggregator struct {
	store MetricStore
	cfg   Config
	log   *logger.Logger

	mu      sync.Mutex
	buffer  []domain.MetricEvent
	rollups map[dayKey]*domain.DailyMetrics
	// completedN tracks turn_completed counts per key for the running
	// sentiment and processing-time averages.
	completedN map[dayKey]int

	flushNow chan struct{}
}

// New creates an aggregator.
func New(store MetricStore, cfg Config, log *logger.Logger) *Aggregator {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	return &Aggregator{
		store:      store,
		cfg:        cfg,
		log:        log.WithComponent("metrics_aggregator"),
		buffer:     make([]domain.MetricEvent, 0, cfg.BufferSize),
		rollups:    make(map[dayKey]*domain.DailyMetrics),
		completedN: make(map[dayKey]int),
		flushNow:   make(chan struct{}, 1),
	}
}

// Record buffers one event. Never blocks on the store; when the buffer
// reaches capacity the background loop is nudged to flush.
func (a *Aggregator) Record(ev domain.MetricEvent) {
	a.mu.Lock()
	a.buffer = append(a.buffer, ev)
	full := len(a.buffer) >= a.cfg.BufferSize
	a.applyRollup(ev)
	a.mu.Unlock()

	if full {
		select {
		case a.flushNow <- struct{}{}:
		default:
		}
	}
}

// applyRollup updates the in-memory day aggregate. Caller holds the lock.
func (a *Aggregator) applyRollup(ev domain.MetricEvent) {
	day := ev.OccurredAt.UTC().Truncate(24 * time.Hour)
	key := dayKey{dealershipID: ev.DealershipID, day: day.Format("2006-01-02")}

	m, ok := a.rollups[key]
	if !ok {
		m = &domain.DailyMetrics{DealershipID: ev.DealershipID, Day: day}
		a.rollups[key] = m
	}

	switch ev.EventType {
	case domain.MetricConversationStarted:
		m.Started++
	case domain.MetricTurnCompleted:
		m.TurnsCompleted++
		n := a.completedN[key]
		m.AvgSentiment = (m.AvgSentiment*float64(n) + ev.Sentiment) / float64(n+1)
		m.AvgProcessingMS = (m.AvgProcessingMS*float64(n) + float64(ev.ProcessingMS)) / float64(n+1)
		a.completedN[key] = n + 1
	case domain.MetricTurnFailed:
		m.TurnsFailed++
	case domain.MetricConversationCompleted:
		m.Completed++
	case domain.MetricConversationEscalated:
		m.Escalated++
	case domain.MetricConversationFailed:
		m.Failed++
	}
	m.TokensUsed += int64(ev.TokensUsed)
	m.CostUSD += ev.CostUSD
}

// Snapshot returns the in-memory rollup for a dealership and day, or nil when
// the process has recorded nothing for it.
func (a *Aggregator) Snapshot(dealershipID int64, day time.Time) *domain.DailyMetrics {
	key := dayKey{dealershipID: dealershipID, day: day.UTC().Format("2006-01-02")}

	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.rollups[key]
	if !ok {
		return nil
	}
	copied := *m
	return &copied
}

// Run flushes on the interval, on buffer pressure, and once more on shutdown.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush with a context that outlives the shutdown signal.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			a.flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			a.flush(ctx)
		case <-a.flushNow:
			a.flush(ctx)
		}
	}
}

// flush writes the current buffer. On store failure the batch is put back at
// the front so event order is preserved for the next attempt.
func (a *Aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.buffer
	a.buffer = make([]domain.MetricEvent, 0, a.cfg.BufferSize)
	a.mu.Unlock()

	if err := a.store.InsertMetricEvents(ctx, batch); err != nil {
		a.log.Error("metric flush failed, requeueing batch", "events", len(batch), "error", err)
		a.mu.Lock()
		a.buffer = append(batch, a.buffer...)
		a.mu.Unlock()
		return
	}

	a.log.Debug("flushed metric batch", "events", len(batch))
}
