// Package gemini provides the Gemini-backed AI text generation client.
// This is part of the platform layer and contains no business logic.
package gemini

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Config for the Gemini client.
type Config struct {
	APIKey string
	// RequestsPerSecond caps outbound calls across all workers sharing this
	// client. Zero disables limiting.
	RequestsPerSecond float64
	// RequestTimeout bounds a single generation call.
	RequestTimeout time.Duration
}

// Turn is one prior exchange supplied as generation context.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// Request describes one generation call.
type Request struct {
	Model       string
	Temperature float64
	Prompt      string
	History     []Turn
}

// Result is the raw generation output.
type Result struct {
	Text       string
	TokensUsed int
}

// Client wraps the genai SDK with rate limiting and per-call timeouts.
type Client struct {
	client  *genai.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	inner, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client:  inner,
		limiter: limiter,
		timeout: timeout,
	}, nil
}

// Generate runs one generation call. History turns precede the prompt so the
// model sees the full dialogue.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := turn.Role
		if role != "user" && role != "model" {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	})

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}

	resp, err := c.client.Models.GenerateContent(callCtx, req.Model, contents, genCfg)
	if err != nil {
		return Result{}, err
	}

	result := Result{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		result.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	return result, nil
}
