package metricsagg

import (
	"context"
	"sync"
	"time"

	"dealerline_backend/internal/conversation/breaker"
	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/internal/conversation/repository"
	"dealerline_backend/platform/logger"
	"dealerline_backend/platform/metrics"
)

// Classification thresholds.
const (
	failureRatioUnhealthy = 0.10
	backlogDegraded       = 100
	healthLookback        = 24 * time.Hour
)

// QueueStats is one queue's job counts as exposed in the health report.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// QueueInspector reports per-queue job counts. Implemented by the scheduler's
// inspector wrapper.
type QueueInspector interface {
	QueueStats(ctx context.Context) (map[string]QueueStats, error)
}

// StreamStatus reports whether the lead stream consumer is connected.
type StreamStatus interface {
	Connected() bool
}

// HealthStore is the repository surface the monitor samples.
type HealthStore interface {
	StateCountsSince(ctx context.Context, cutoff time.Time) ([]repository.StateCounts, error)
	EngineStatsSince(ctx context.Context, cutoff time.Time) (repository.EngineStats, error)
}

// DealershipHealth is the classification for one dealership.
type DealershipHealth struct {
	DealershipID int64         `json:"dealershipId"`
	Health       domain.Health `json:"health"`
	Active       int           `json:"active"`
	Completed    int           `json:"completed"`
	Escalated    int           `json:"escalated"`
	Failed       int           `json:"failed"`
}

// EngineMetrics is the conversation summary block of the health report.
type EngineMetrics struct {
	TotalConversations          int     `json:"totalConversations"`
	ActiveConversations         int     `json:"activeConversations"`
	AverageTurnsPerConversation float64 `json:"averageTurnsPerConversation"`
	AverageResponseTimeMS       float64 `json:"averageResponseTime"`
}

// HealthReport is the full engine health view served by the ops API. Queue is
// the aggregate across all queues; Queues breaks it down per queue.
type HealthReport struct {
	Health          domain.Health         `json:"health"`
	StreamConnected bool                  `json:"streamConnected"`
	Breaker         breaker.Snapshot      `json:"circuitBreaker"`
	Queue           QueueStats            `json:"queue"`
	Queues          map[string]QueueStats `json:"queues"`
	Backlog         int                   `json:"backlog"`
	Metrics         EngineMetrics         `json:"metrics"`
	Dealerships     []DealershipHealth    `json:"dealerships"`
	SampledAt       time.Time             `json:"sampledAt"`
}

// Monitor samples the breaker, stream connectivity, queue backlog, and
// conversation outcomes on an interval and keeps the latest classification
// for the health endpoint.
type Monitor struct {
	brk      *breaker.Breaker
	queues   QueueInspector
	store    HealthStore
	stream   StreamStatus
	log      *logger.Logger
	interval time.Duration

	mu     sync.RWMutex
	report HealthReport
}

// NewMonitor creates a health monitor.
func NewMonitor(brk *breaker.Breaker, queues QueueInspector, store HealthStore, stream StreamStatus, log *logger.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		brk:      brk,
		queues:   queues,
		store:    store,
		stream:   stream,
		log:      log.WithComponent("health_monitor"),
		interval: interval,
		report:   HealthReport{Health: domain.HealthHealthy},
	}
}

// Report returns the latest sampled health view.
func (m *Monitor) Report() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

// Run samples immediately and then on the interval until the context ends.
func (m *Monitor) Run(ctx context.Context) error {
	m.sample(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	report := HealthReport{
		Breaker:   m.brk.Snapshot(),
		Queues:    map[string]QueueStats{},
		SampledAt: time.Now().UTC(),
	}

	if m.stream != nil {
		report.StreamConnected = m.stream.Connected()
	}

	if m.queues != nil {
		stats, err := m.queues.QueueStats(ctx)
		if err != nil {
			m.log.Error("failed to inspect queues", "error", err)
		} else {
			report.Queues = stats
			for queue, s := range stats {
				report.Queue.Waiting += s.Waiting
				report.Queue.Active += s.Active
				report.Queue.Completed += s.Completed
				report.Queue.Failed += s.Failed
				report.Backlog += s.Waiting
				metrics.QueueDepth.WithLabelValues(queue).Set(float64(s.Waiting))
			}
		}
	}

	cutoff := report.SampledAt.Add(-healthLookback)

	stats, err := m.store.EngineStatsSince(ctx, cutoff)
	if err != nil {
		m.log.Error("failed to summarize conversations", "error", err)
	} else {
		report.Metrics = EngineMetrics{
			TotalConversations:          stats.TotalConversations,
			ActiveConversations:         stats.ActiveConversations,
			AverageTurnsPerConversation: stats.AvgTurns,
			AverageResponseTimeMS:       stats.AvgResponseMS,
		}
	}

	counts, err := m.store.StateCountsSince(ctx, cutoff)
	if err != nil {
		m.log.Error("failed to sample conversation states", "error", err)
	}
	for _, c := range counts {
		report.Dealerships = append(report.Dealerships, DealershipHealth{
			DealershipID: c.DealershipID,
			Health:       classifyDealership(c, report),
			Active:       c.Active,
			Completed:    c.Completed,
			Escalated:    c.Escalated,
			Failed:       c.Failed,
		})
	}

	report.Health = classifyOverall(report)
	m.exportBreakerGauge(report.Breaker.State)

	m.mu.Lock()
	m.report = report
	m.mu.Unlock()

	if report.Health != domain.HealthHealthy {
		m.log.Warn("engine health degraded",
			"health", report.Health,
			"breaker", report.Breaker.State,
			"backlog", report.Backlog,
		)
	}
}

// classifyDealership applies the per-dealership rules. The failure ratio is
// failed conversations relative to completed ones; failures with nothing
// completed yet count as unhealthy outright. The breaker and backlog are
// process-wide signals, so they cap every dealership the same way.
func classifyDealership(c repository.StateCounts, report HealthReport) domain.Health {
	if report.Breaker.State == breaker.StateOpen {
		return domain.HealthUnhealthy
	}
	if c.Failed > 0 && (c.Completed == 0 || float64(c.Failed)/float64(c.Completed) > failureRatioUnhealthy) {
		return domain.HealthUnhealthy
	}
	if report.Backlog > backlogDegraded || report.Breaker.State == breaker.StateHalfOpen {
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}

func classifyOverall(report HealthReport) domain.Health {
	health := domain.HealthHealthy
	if report.Backlog > backlogDegraded || report.Breaker.State == breaker.StateHalfOpen {
		health = domain.HealthDegraded
	}
	if report.Breaker.State == breaker.StateOpen {
		return domain.HealthUnhealthy
	}
	for _, d := range report.Dealerships {
		switch d.Health {
		case domain.HealthUnhealthy:
			return domain.HealthUnhealthy
		case domain.HealthDegraded:
			health = domain.HealthDegraded
		}
	}
	return health
}

func (m *Monitor) exportBreakerGauge(state breaker.State) {
	switch state {
	case breaker.StateClosed:
		metrics.BreakerState.Set(0)
	case breaker.StateHalfOpen:
		metrics.BreakerState.Set(1)
	case breaker.StateOpen:
		metrics.BreakerState.Set(2)
	}
}
