// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"dealerline_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event        = events.Event
	Bus          = events.Bus
	Handler      = events.Handler
	HandlerFunc  = events.HandlerFunc
	BaseEvent    = events.BaseEvent
	Subscription = events.Subscription
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ConversationStarted is published when a lead event produces a new conversation.
type ConversationStarted struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	LeadID         string    `json:"leadId"`
	DealershipID   int64     `json:"dealershipId"`
	Priority       int       `json:"priority"`
	AIModel        string    `json:"aiModel"`
	MaxTurns       int       `json:"maxTurns"`
}

func (e ConversationStarted) EventName() string { return "conversations.conversation.started" }

// TurnCompleted is published after a turn is persisted successfully.
type TurnCompleted struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	DealershipID   int64     `json:"dealershipId"`
	TurnNumber     int       `json:"turnNumber"`
	Intent         string    `json:"intent"`
	Sentiment      float64   `json:"sentiment"`
	TokensUsed     int       `json:"tokensUsed"`
	ProcessingMS   int64     `json:"processingMs"`
}

func (e TurnCompleted) EventName() string { return "conversations.turn.completed" }

// TurnFailed is published when a turn attempt fails. Final reports whether the
// retry budget is exhausted.
type TurnFailed struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	DealershipID   int64     `json:"dealershipId"`
	TurnNumber     int       `json:"turnNumber"`
	Attempt        int       `json:"attempt"`
	Final          bool      `json:"final"`
	ErrorKind      string    `json:"errorKind"`
	ErrorMessage   string    `json:"errorMessage"`
}

func (e TurnFailed) EventName() string { return "conversations.turn.failed" }

// ConversationCompleted is published when a conversation reaches its turn
// budget or completes early.
type ConversationCompleted struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	DealershipID   int64     `json:"dealershipId"`
	TotalTurns     int       `json:"totalTurns"`
}

func (e ConversationCompleted) EventName() string { return "conversations.conversation.completed" }

// ConversationEscalated is published when a conversation is handed to a human.
type ConversationEscalated struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	DealershipID   int64     `json:"dealershipId"`
	TurnNumber     int       `json:"turnNumber"`
	Reason         string    `json:"reason"`
}

func (e ConversationEscalated) EventName() string { return "conversations.conversation.escalated" }

// ConversationFailed is published when a conversation is marked failed after
// exhausting retries.
type ConversationFailed struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	DealershipID   int64     `json:"dealershipId"`
	TurnNumber     int       `json:"turnNumber"`
	Reason         string    `json:"reason"`
}

func (e ConversationFailed) EventName() string { return "conversations.conversation.failed" }

// =============================================================================
// AI Backend Domain Events
// =============================================================================

// BreakerStateChanged is published when the AI circuit breaker transitions.
type BreakerStateChanged struct {
	BaseEvent
	From string `json:"from"`
	To   string `json:"to"`
}

func (e BreakerStateChanged) EventName() string { return "ai.breaker.state_changed" }
