// Package domain holds the conversation engine's core types and turn rules.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a conversation.
type State string

const (
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateEscalated State = "escalated"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is allowed from this state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateEscalated, StateFailed:
		return true
	default:
		return false
	}
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Context is one customer dialogue. CurrentTurn is monotonically
// non-decreasing and never exceeds MaxTurns; MaxTurns, AIModel, Temperature
// and Priority are fixed at creation.
type Context struct {
	ID           uuid.UUID
	LeadID       string
	DealershipID int64

	CurrentTurn int
	MaxTurns    int
	State       State

	AIModel     string
	Temperature float64
	Priority    int

	Metadata Metadata

	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	EscalatedAt      *time.Time
	EscalationReason *string
	LastError        *string
}

// Metadata carries the lead-derived fields a turn needs to render prompts.
type Metadata struct {
	Source          string            `json:"source,omitempty"`
	CustomerName    string            `json:"customerName,omitempty"`
	CustomerPhone   string            `json:"customerPhone,omitempty"`
	CustomerEmail   string            `json:"customerEmail,omitempty"`
	VehicleModel    string            `json:"vehicleModel,omitempty"`
	VehiclePrice    float64           `json:"vehiclePrice,omitempty"`
	Comments        string            `json:"comments,omitempty"`
	SessionData     map[string]string `json:"sessionData,omitempty"`
}

// Message is one turn's exchange. Rows are append-only.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	TurnNumber     int
	Metadata       MessageMetadata
	CreatedAt      time.Time
}

// MessageMetadata records how an assistant message was produced.
type MessageMetadata struct {
	Model            string  `json:"model,omitempty"`
	PromptTemplateID string  `json:"promptTemplateId,omitempty"`
	ProcessingMS     int64   `json:"processingMs,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	Intent           string  `json:"intent,omitempty"`
	Sentiment        float64 `json:"sentiment,omitempty"`
	TokensUsed       int     `json:"tokensUsed,omitempty"`
	CostUSD          float64 `json:"costUsd,omitempty"`
	DeliveryStatus   string  `json:"deliveryStatus,omitempty"`
}
