package domain

import (
	"math/rand"
	"time"
)

// Delay policy constants. The jitter approximates human response cadence;
// hot intents reply faster and disengaged threads are de-prioritized.
const (
	nextTurnBaseDelay  = 30 * time.Second
	nextTurnVariance   = 20 * time.Second
	lowEngagementDelay = 30 * time.Second

	initialDelayFloor  = 5 * time.Second
	initialDelayJitter = 10 * time.Second
)

// RandFn returns a non-negative duration below n. Injected so tests can pin
// the jitter.
type RandFn func(n time.Duration) time.Duration

// DefaultRand is the production jitter source.
func DefaultRand(n time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(n)))
}

// InitialTurnDelay computes the delay before a conversation's first turn.
// High-priority leads get an instant reply; everyone else waits a small
// randomized window so the first message does not feel robotic.
func InitialTurnDelay(priority int, rnd RandFn) time.Duration {
	if priority >= HighPriorityThreshold {
		return 0
	}
	return initialDelayFloor + rnd(initialDelayJitter)
}

// NextTurnDelay computes the delay before the next turn: 30s plus or minus
// up to 20s of jitter, halved for appointment or purchase intent, penalized
// for low sentiment.
func NextTurnDelay(intent string, sentiment float64, rnd RandFn) time.Duration {
	delay := nextTurnBaseDelay - nextTurnVariance + rnd(2*nextTurnVariance)

	if intent == IntentScheduleAppointment || intent == IntentPurchase {
		delay /= 2
	}

	if sentiment < LowEngagementSentiment {
		delay += lowEngagementDelay
	}

	return delay
}
