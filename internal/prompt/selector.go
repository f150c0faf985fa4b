// Package prompt provides the turn-indexed prompt templates for the
// conversation engine.
package prompt

import (
	"bytes"
	"fmt"
	"text/template"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/internal/conversation/ports"
)

// Render fallbacks for leads that arrive without a name or vehicle.
const (
	fallbackName    = "there"
	fallbackVehicle = "vehicle options"
)

// Templates are selected by turn number: an opener, a follow-up, and a
// closing nudge for every turn after that. Replies are requested as JSON so
// the engine can extract intent and sentiment; free text still gets through
// via the decoder fallback.
const responseContract = `Respond with a JSON object: {"message": <your reply to the customer>, "intent": one of "schedule_appointment", "purchase_intent", "human_request", "general_response", "confidence": 0-1, "sentiment": 0-1, "escalation_reason": set only when a human must take over}.`

var defaultTemplates = []ports.PromptTemplate{
	{
		ID: "opener_v1",
		Text: `You are a friendly automotive sales assistant for a dealership.
A customer named {{.CustomerName}}{{if .Source}} (lead via {{.Source}}){{end}} asked about {{.Vehicle}}{{if .Comments}} and wrote: "{{.Comments}}"{{end}}.
Greet them by name, acknowledge their interest, and ask one clarifying question about what they are looking for.
` + responseContract,
	},
	{
		ID: "follow_up_v1",
		Text: `You are continuing a dialogue with {{.CustomerName}} about {{.Vehicle}}. This is turn {{.Turn}} and {{.PriorMessages}} messages have been exchanged.
{{if .LastCustomerMessage}}Their latest message: "{{.LastCustomerMessage}}"
{{end}}Answer their latest message helpfully, then move the conversation toward booking a visit or a test drive.
` + responseContract,
	},
	{
		ID: "closing_v1",
		Text: `You are wrapping up a dialogue with {{.CustomerName}} about {{.Vehicle}} on turn {{.Turn}}.
{{if .LastCustomerMessage}}Their latest message: "{{.LastCustomerMessage}}"
{{end}}Summarize what has been discussed and propose a concrete next step with the dealership.
` + responseContract,
	},
}

// Selector is the template-based prompt selector.
type Selector struct {
	templates []ports.PromptTemplate
	compiled  map[string]*template.Template
}

// New creates a selector over the default templates.
func New() (*Selector, error) {
	return NewWithTemplates(defaultTemplates)
}

// NewWithTemplates creates a selector over a custom template set, first
// template for turn 1, last template for every turn past the set's length.
func NewWithTemplates(templates []ports.PromptTemplate) (*Selector, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("prompt: no templates provided")
	}

	compiled := make(map[string]*template.Template, len(templates))
	for _, tpl := range templates {
		parsed, err := template.New(tpl.ID).Parse(tpl.Text)
		if err != nil {
			return nil, fmt.Errorf("prompt: failed to parse template %s: %w", tpl.ID, err)
		}
		compiled[tpl.ID] = parsed
	}

	return &Selector{templates: templates, compiled: compiled}, nil
}

// Select returns the template for a turn. Turns past the template set reuse
// the final template.
func (s *Selector) Select(turn int) (ports.PromptTemplate, error) {
	if turn < 1 {
		return ports.PromptTemplate{}, fmt.Errorf("prompt: invalid turn %d", turn)
	}
	idx := turn - 1
	if idx >= len(s.templates) {
		idx = len(s.templates) - 1
	}
	return s.templates[idx], nil
}

// Render substitutes lead fields, the turn number, and the dialogue so far
// into the template with safe fallbacks.
func (s *Selector) Render(tpl ports.PromptTemplate, conv *domain.Context, turn int, history []domain.Message) (string, error) {
	parsed, ok := s.compiled[tpl.ID]
	if !ok {
		return "", fmt.Errorf("prompt: unknown template %s", tpl.ID)
	}

	name := conv.Metadata.CustomerName
	if name == "" {
		name = fallbackName
	}
	vehicle := conv.Metadata.VehicleModel
	if vehicle == "" {
		vehicle = fallbackVehicle
	}

	var buf bytes.Buffer
	err := parsed.Execute(&buf, map[string]any{
		"CustomerName":        name,
		"Vehicle":             vehicle,
		"Comments":            conv.Metadata.Comments,
		"Source":              conv.Metadata.Source,
		"Turn":                turn,
		"PriorMessages":       len(history),
		"LastCustomerMessage": lastCustomerMessage(history),
		"SessionData":         conv.Metadata.SessionData,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: failed to render template %s: %w", tpl.ID, err)
	}
	return buf.String(), nil
}

// lastCustomerMessage returns the most recent user-authored message, or empty
// when the customer has not written yet.
func lastCustomerMessage(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
