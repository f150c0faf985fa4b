// Package retry provides a reusable retry policy shared by the stream read
// loop and the turn queue's backoff calculation.
// This is part of the platform layer and contains no business logic.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes bounded exponential backoff: BaseDelay doubled per attempt,
// capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff delay before the given retry attempt.
// Attempt numbering starts at 0 for the first retry.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs fn up to MaxAttempts times, sleeping the policy delay between
// attempts. It returns nil on the first success, the last error otherwise.
// Context cancellation aborts both the sleep and further attempts.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	if p.MaxAttempts < 1 {
		return errors.New("retry: invalid max attempts")
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt < p.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt)):
			}
		}
	}

	return lastErr
}

// Backoff tracks consecutive failures for an open-ended loop, such as a
// blocking stream read. Next returns the delay to sleep before the next
// attempt; Reset clears the failure streak after a success.
type Backoff struct {
	policy   Policy
	failures int
}

// NewBackoff creates a Backoff from the given policy. MaxAttempts is ignored;
// the caller owns the loop.
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Next records a failure and returns the delay before retrying.
func (b *Backoff) Next() time.Duration {
	delay := b.policy.Delay(b.failures)
	b.failures++
	return delay
}

// Reset clears the failure streak.
func (b *Backoff) Reset() {
	b.failures = 0
}
