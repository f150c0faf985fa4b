package domain

import (
	"testing"
	"time"
)

func fixedRand(d time.Duration) RandFn {
	return func(time.Duration) time.Duration { return d }
}

func TestInitialTurnDelay(t *testing.T) {
	if got := InitialTurnDelay(10, fixedRand(5*time.Second)); got != 0 {
		t.Fatalf("expected instant reply for high priority, got %v", got)
	}
	if got := InitialTurnDelay(9, fixedRand(7*time.Second)); got != 12*time.Second {
		t.Fatalf("expected 5s floor plus jitter, got %v", got)
	}
}

func TestNextTurnDelayCenteredJitter(t *testing.T) {
	// The jitter draw spans 0-40s so the delay lands in 10-50s around the
	// 30s base.
	if got := NextTurnDelay(IntentGeneralResponse, 0.7, fixedRand(20*time.Second)); got != 30*time.Second {
		t.Fatalf("expected mid-draw to hit the 30s base, got %v", got)
	}
	if got := NextTurnDelay(IntentGeneralResponse, 0.7, fixedRand(0)); got != 10*time.Second {
		t.Fatalf("expected 10s floor, got %v", got)
	}
	if got := NextTurnDelay(IntentGeneralResponse, 0.7, fixedRand(40*time.Second)); got != 50*time.Second {
		t.Fatalf("expected 50s ceiling, got %v", got)
	}
}

func TestNextTurnDelayHotIntentsHalved(t *testing.T) {
	for _, intent := range []string{IntentScheduleAppointment, IntentPurchase} {
		got := NextTurnDelay(intent, 0.7, fixedRand(20*time.Second))
		if got != 15*time.Second {
			t.Fatalf("expected halved delay for %s, got %v", intent, got)
		}
	}
}

func TestNextTurnDelayLowSentimentPenalty(t *testing.T) {
	got := NextTurnDelay(IntentGeneralResponse, 0.2, fixedRand(20*time.Second))
	if got != 60*time.Second {
		t.Fatalf("expected 30s+30s penalty, got %v", got)
	}

	// Penalty applies after halving for hot intents.
	got = NextTurnDelay(IntentPurchase, 0.2, fixedRand(20*time.Second))
	if got != 45*time.Second {
		t.Fatalf("expected 15s+30s, got %v", got)
	}

	// Exactly at the threshold is not penalized.
	got = NextTurnDelay(IntentGeneralResponse, LowEngagementSentiment, fixedRand(20*time.Second))
	if got != 30*time.Second {
		t.Fatalf("expected no penalty at threshold, got %v", got)
	}
}

func TestDefaultRandBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := DefaultRand(20 * time.Second)
		if d < 0 || d >= 20*time.Second {
			t.Fatalf("jitter out of range: %v", d)
		}
	}
	if DefaultRand(0) != 0 {
		t.Fatalf("expected zero jitter for zero range")
	}
}
