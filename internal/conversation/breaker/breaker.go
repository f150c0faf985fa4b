// Package breaker implements the circuit breaker guarding the AI backend.
// It fails fast while the backend is down so queued turns burn a cheap
// rejection instead of a slow timeout.
package breaker

import (
	"sync"
	"time"

	"dealerline_backend/platform/apperr"
)

// State is the breaker's position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned by Allow while the circuit is open. Callers must not
// count this rejection as a backend failure.
var ErrOpen = apperr.Unavailable("ai backend circuit open")

// Snapshot is a point-in-time view of the breaker for the health surface.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	HalfOpenSuccesses   int       `json:"halfOpenSuccesses"`
	OpenedAt            time.Time `json:"openedAt,omitempty"`
}

// Config sets the breaker thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures that open the circuit
	CooldownPeriod   time.Duration // open duration before probing resumes
	SuccessThreshold int           // half-open successes that close the circuit
}

// Breaker is a mutex-guarded three-state circuit breaker. The open to
// half-open transition is lazy: it happens on the first Allow after the
// cooldown elapses, not on a timer.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	probing      bool
	openedAt     time.Time
	onTransition func(from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook registers a callback invoked synchronously on every
// state change, after the breaker lock is released.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// New creates a closed breaker.
func New(cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// transition moves to a new state and resets counters. Caller holds the lock.
// Returns the change for the caller to report after unlocking.
func (b *Breaker) transition(to State) (from State, changed bool) {
	from = b.state
	if from == to {
		return from, false
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	b.probing = false
	if to == StateOpen {
		b.openedAt = b.now()
	}
	return from, true
}

func (b *Breaker) notify(from, to State, changed bool) {
	if changed && b.onTransition != nil {
		b.onTransition(from, to)
	}
}

// Allow reports whether a call may proceed. While open it returns ErrOpen
// until the cooldown elapses, then moves to half-open. Half-open admits one
// trial call at a time: concurrent callers are rejected until the in-flight
// trial reports Success, Failure, or Release.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.CooldownPeriod {
			b.mu.Unlock()
			return ErrOpen
		}
		from, changed := b.transition(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen, changed)
		return nil
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}

	b.mu.Unlock()
	return nil
}

// Release frees the half-open trial slot for a call that ended without a
// verdict, such as a canceled context. No-op in other states.
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
	b.mu.Unlock()
}

// Success records a successful backend call.
func (b *Breaker) Success() {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probing = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			from, changed := b.transition(StateClosed)
			b.mu.Unlock()
			b.notify(from, StateClosed, changed)
			return
		}
	}

	b.mu.Unlock()
}

// Failure records a failed backend call. Closed circuits open after the
// failure threshold; a half-open circuit reopens on any failure.
func (b *Breaker) Failure() {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			from, changed := b.transition(StateOpen)
			b.mu.Unlock()
			b.notify(from, StateOpen, changed)
			return
		}
	case StateHalfOpen:
		from, changed := b.transition(StateOpen)
		b.mu.Unlock()
		b.notify(from, StateOpen, changed)
		return
	}

	b.mu.Unlock()
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current breaker view.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		HalfOpenSuccesses:   b.successes,
		OpenedAt:            b.openedAt,
	}
}
