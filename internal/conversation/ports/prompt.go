package ports

import "dealerline_backend/internal/conversation/domain"

// PromptTemplate identifies a rendered prompt so the message metadata can
// record which template produced a turn.
type PromptTemplate struct {
	ID   string
	Text string
}

// PromptSelector picks and renders the prompt for a turn. Selection is keyed
// on the turn number; rendering substitutes lead fields from the conversation
// metadata plus the turn number and prior messages, with safe fallbacks for
// missing values.
type PromptSelector interface {
	Select(turn int) (PromptTemplate, error)
	Render(tpl PromptTemplate, conv *domain.Context, turn int, history []domain.Message) (string, error)
}
