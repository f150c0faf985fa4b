package adapters

import (
	"context"
	"errors"

	"dealerline_backend/internal/conversation/breaker"
	"dealerline_backend/internal/conversation/ports"
	"dealerline_backend/platform/ai/gemini"
	"dealerline_backend/platform/apperr"
)

// AIBackendAdapter adapts the Gemini client for use by the conversation
// engine, guarded by the circuit breaker. It implements the
// conversation/ports.AIBackend interface.
//
// Breaker accounting: a rejection by the breaker itself is never counted as a
// failure, and context cancellation is counted against the caller, not the
// backend.
type AIBackendAdapter struct {
	client *gemini.Client
	brk    *breaker.Breaker
}

// NewAIBackendAdapter wraps a Gemini client with the breaker.
func NewAIBackendAdapter(client *gemini.Client, brk *breaker.Breaker) *AIBackendAdapter {
	return &AIBackendAdapter{client: client, brk: brk}
}

// Generate performs one guarded generation call.
func (a *AIBackendAdapter) Generate(ctx context.Context, params ports.GenerateParams) (ports.GenerateResult, error) {
	if err := a.brk.Allow(); err != nil {
		return ports.GenerateResult{}, err
	}

	history := make([]gemini.Turn, 0, len(params.History))
	for _, turn := range params.History {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		history = append(history, gemini.Turn{Role: role, Text: turn.Text})
	}

	result, err := a.client.Generate(ctx, gemini.Request{
		Model:       params.Model,
		Temperature: params.Temperature,
		Prompt:      params.Prompt,
		History:     history,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.brk.Release()
			return ports.GenerateResult{}, err
		}
		a.brk.Failure()
		return ports.GenerateResult{}, apperr.Transient("ai generation failed", err)
	}

	a.brk.Success()
	return ports.GenerateResult{
		Text:       result.Text,
		TokensUsed: result.TokensUsed,
	}, nil
}
