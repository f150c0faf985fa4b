// Package ports defines the interfaces the conversation domain requires from
// external systems. The implementations are provided by the composition root,
// so the engine never imports a concrete AI vendor or template store.
package ports

import "context"

// HistoryTurn is one prior exchange passed to the backend for context.
type HistoryTurn struct {
	Role string
	Text string
}

// GenerateParams is the AI request shaped the way the conversation domain
// wants it. Model and Temperature come from the conversation, frozen at
// creation.
type GenerateParams struct {
	Model       string
	Temperature float64
	Prompt      string
	History     []HistoryTurn
}

// GenerateResult is the raw backend output before schema validation.
type GenerateResult struct {
	Text       string
	TokensUsed int
}

// AIBackend is the interface the turn processor uses to generate responses.
// Implementations must return an error the apperr package can classify:
// transient for retryable upstream failures, unavailable when a protective
// layer rejected the call without attempting the backend.
type AIBackend interface {
	Generate(ctx context.Context, params GenerateParams) (GenerateResult, error)
}
