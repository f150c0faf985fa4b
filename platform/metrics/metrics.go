// Package metrics provides Prometheus metrics instrumentation.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConversationsTotal tracks conversations by final outcome.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations by outcome",
		},
		[]string{"outcome"},
	)

	// TurnsTotal tracks processed turns by result.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Total conversation turns processed",
		},
		[]string{"result"},
	)

	// AICallDuration tracks AI backend call duration.
	AICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_duration_seconds",
			Help:    "AI backend call duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"model", "status"},
	)

	// AITokensTotal tracks tokens consumed per model.
	AITokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Total AI tokens consumed",
		},
		[]string{"model"},
	)

	// BreakerState exposes the circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ai_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
	)

	// QueueDepth tracks waiting turn jobs per queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "turn_queue_depth",
			Help: "Waiting turn jobs per queue",
		},
		[]string{"queue"},
	)

	// StreamConnected reports lead stream connectivity (1 connected, 0 not).
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lead_stream_connected",
			Help: "Lead stream connectivity: 1 connected, 0 disconnected",
		},
	)

	// LeadsConsumed tracks consumed lead events by result.
	LeadsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_events_consumed_total",
			Help: "Lead events consumed from the stream",
		},
		[]string{"result"},
	)
)

// RecordAICall records duration and token usage for one AI backend call.
func RecordAICall(model, status string, seconds float64, tokens int) {
	AICallDuration.WithLabelValues(model, status).Observe(seconds)
	if tokens > 0 {
		AITokensTotal.WithLabelValues(model).Add(float64(tokens))
	}
}
