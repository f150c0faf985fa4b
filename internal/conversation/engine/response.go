package engine

import (
	"encoding/json"
	"strings"

	"dealerline_backend/internal/conversation/domain"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// turnResponseSchema is the contract the model is prompted to follow. Every
// field is optional: a reply that carries only the escalation signal is still
// a valid response object. Only payloads that match no recognized field fall
// back to free-text handling, so a malformed reply is still a reply the
// customer can receive.
const turnResponseSchema = `{
	"type": "object",
	"properties": {
		"message": {"type": "string"},
		"intent": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"sentiment": {"type": "number", "minimum": 0, "maximum": 1},
		"escalate": {"type": "boolean"},
		"escalation_reason": {"type": "string"},
		"tokens_used": {"type": "integer", "minimum": 0},
		"cost": {"type": "number", "minimum": 0}
	},
	"anyOf": [
		{"required": ["message"]},
		{"required": ["intent"]},
		{"required": ["escalate"]},
		{"required": ["escalation_reason"]}
	]
}`

var responseSchema = jsonschema.MustCompileString("turn_response.json", turnResponseSchema)

// Defaults for fields the model omitted.
const (
	fallbackConfidence = 0.8
	fallbackSentiment  = 0.7
)

// defaultEscalateReason is persisted when the model sets the escalate flag
// without saying why.
const defaultEscalateReason = "escalation requested by assistant"

// TurnResponse is the validated model reply for one turn.
type TurnResponse struct {
	Message          string
	Intent           string
	Confidence       float64
	Sentiment        float64
	Escalate         bool
	EscalationReason string
	TokensUsed       int
	CostUSD          float64
	// Structured reports whether the reply validated against the schema or
	// went through the free-text fallback.
	Structured bool
}

// Outcome converts the response into the decision signals.
func (r TurnResponse) Outcome() domain.TurnOutcome {
	return domain.TurnOutcome{
		Intent:           r.Intent,
		Confidence:       r.Confidence,
		Sentiment:        r.Sentiment,
		EscalationReason: r.EscalationReason,
	}
}

type rawTurnResponse struct {
	Message          string   `json:"message"`
	Intent           string   `json:"intent"`
	Confidence       *float64 `json:"confidence"`
	Sentiment        *float64 `json:"sentiment"`
	Escalate         bool     `json:"escalate"`
	EscalationReason string   `json:"escalation_reason"`
	TokensUsed       int      `json:"tokens_used"`
	Cost             float64  `json:"cost"`
}

// DecodeResponse parses a model reply. A JSON object matching the schema
// yields a structured response with defaults filling the omitted fields; an
// escalate flag without a reason still escalates, under a generic reason.
// Anything else is treated as a plain customer-facing message.
func DecodeResponse(text string) TurnResponse {
	candidate := stripCodeFence(strings.TrimSpace(text))

	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err == nil {
		if err := responseSchema.Validate(doc); err == nil {
			var raw rawTurnResponse
			if err := json.Unmarshal([]byte(candidate), &raw); err == nil {
				return structuredResponse(raw)
			}
		}
	}

	return TurnResponse{
		Message:    strings.TrimSpace(text),
		Intent:     domain.IntentGeneralResponse,
		Confidence: fallbackConfidence,
		Sentiment:  fallbackSentiment,
	}
}

func structuredResponse(raw rawTurnResponse) TurnResponse {
	resp := TurnResponse{
		Message:          raw.Message,
		Intent:           raw.Intent,
		Confidence:       fallbackConfidence,
		Sentiment:        fallbackSentiment,
		Escalate:         raw.Escalate,
		EscalationReason: raw.EscalationReason,
		TokensUsed:       raw.TokensUsed,
		CostUSD:          raw.Cost,
		Structured:       true,
	}
	if resp.Intent == "" {
		resp.Intent = domain.IntentGeneralResponse
	}
	if raw.Confidence != nil {
		resp.Confidence = *raw.Confidence
	}
	if raw.Sentiment != nil {
		resp.Sentiment = *raw.Sentiment
	}
	if resp.Escalate && resp.EscalationReason == "" {
		resp.EscalationReason = defaultEscalateReason
	}
	return resp
}

// stripCodeFence unwraps a markdown-fenced block. Models frequently wrap JSON
// in fences even when told not to.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// EstimateTokens approximates token usage from text length when neither the
// backend nor the reply reports a count.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 && text != "" {
		n = 1
	}
	return n
}
