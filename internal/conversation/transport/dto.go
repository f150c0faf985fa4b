// Package transport defines the ops API request and response shapes for the
// conversation module.
package transport

import (
	"time"

	"dealerline_backend/internal/conversation/domain"

	"github.com/google/uuid"
)

// ConversationResponse is the API view of one conversation.
type ConversationResponse struct {
	ID               uuid.UUID       `json:"id"`
	LeadID           string          `json:"leadId"`
	DealershipID     int64           `json:"dealershipId"`
	CurrentTurn      int             `json:"currentTurn"`
	MaxTurns         int             `json:"maxTurns"`
	State            domain.State    `json:"state"`
	AIModel          string          `json:"aiModel"`
	Temperature      float64         `json:"temperature"`
	Priority         int             `json:"priority"`
	Metadata         domain.Metadata `json:"metadata"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	EscalatedAt      *time.Time      `json:"escalatedAt,omitempty"`
	EscalationReason *string         `json:"escalationReason,omitempty"`
	LastError        *string         `json:"lastError,omitempty"`
}

// MessageResponse is the API view of one conversation message.
type MessageResponse struct {
	ID         uuid.UUID              `json:"id"`
	Role       domain.Role            `json:"role"`
	Content    string                 `json:"content"`
	TurnNumber int                    `json:"turnNumber"`
	Metadata   domain.MessageMetadata `json:"metadata"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// ListConversationsQuery filters the dealership listing.
type ListConversationsQuery struct {
	DealershipID int64  `form:"dealershipId" binding:"required,gt=0"`
	State        string `form:"state"`
	Page         int    `form:"page"`
	PageSize     int    `form:"pageSize"`
}

// ListConversationsResponse is one page of conversations.
type ListConversationsResponse struct {
	Items      []ConversationResponse `json:"items"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pageSize"`
	TotalPages int                    `json:"totalPages"`
}

// DailyMetricsQuery selects the rollup for one dealership and day.
type DailyMetricsQuery struct {
	DealershipID int64  `form:"dealershipId" binding:"required,gt=0"`
	Date         string `form:"date"` // YYYY-MM-DD, defaults to today (UTC)
}

// FromDomain converts a conversation to its API shape.
func FromDomain(c *domain.Context) ConversationResponse {
	return ConversationResponse{
		ID:               c.ID,
		LeadID:           c.LeadID,
		DealershipID:     c.DealershipID,
		CurrentTurn:      c.CurrentTurn,
		MaxTurns:         c.MaxTurns,
		State:            c.State,
		AIModel:          c.AIModel,
		Temperature:      c.Temperature,
		Priority:         c.Priority,
		Metadata:         c.Metadata,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		CompletedAt:      c.CompletedAt,
		EscalatedAt:      c.EscalatedAt,
		EscalationReason: c.EscalationReason,
		LastError:        c.LastError,
	}
}

// MessageFromDomain converts a message to its API shape.
func MessageFromDomain(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Content,
		TurnNumber: m.TurnNumber,
		Metadata:   m.Metadata,
		CreatedAt:  m.CreatedAt,
	}
}
