package domain

import (
	"time"

	"github.com/google/uuid"
)

// MetricEventType classifies a recorded conversation event.
type MetricEventType string

const (
	MetricConversationStarted   MetricEventType = "conversation_started"
	MetricTurnCompleted         MetricEventType = "turn_completed"
	MetricTurnFailed            MetricEventType = "turn_failed"
	MetricConversationCompleted MetricEventType = "conversation_completed"
	MetricConversationEscalated MetricEventType = "conversation_escalated"
	MetricConversationFailed    MetricEventType = "conversation_failed"
)

// MetricEvent is one engine occurrence buffered by the metrics aggregator and
// flushed to the store in batches.
type MetricEvent struct {
	ID             uuid.UUID
	DealershipID   int64
	ConversationID uuid.UUID
	EventType      MetricEventType
	TurnNumber     int
	TokensUsed     int
	CostUSD        float64
	ProcessingMS   int64
	Sentiment      float64
	Intent         string
	OccurredAt     time.Time
}

// DailyMetrics is the per-dealership rollup for one calendar day.
type DailyMetrics struct {
	DealershipID   int64     `json:"dealershipId"`
	Day            time.Time `json:"day"`
	Started        int       `json:"started"`
	TurnsCompleted int       `json:"turnsCompleted"`
	TurnsFailed    int       `json:"turnsFailed"`
	Completed      int       `json:"completed"`
	Escalated      int       `json:"escalated"`
	Failed         int       `json:"failed"`
	TokensUsed     int64     `json:"tokensUsed"`
	CostUSD        float64   `json:"costUsd"`
	AvgSentiment   float64   `json:"avgSentiment"`
	// AvgProcessingMS is the running average generation latency across
	// completed turns.
	AvgProcessingMS float64 `json:"avgProcessingMs"`
}

// Health is the classified condition of the engine for one dealership.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)
