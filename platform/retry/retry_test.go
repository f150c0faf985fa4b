package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{20, 30 * time.Second},
		{-1, time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestPolicyDelayWithoutCap(t *testing.T) {
	p := Policy{BaseDelay: time.Second}
	if got := p.Delay(6); got != 64*time.Second {
		t.Fatalf("expected uncapped doubling, got %v", got)
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoReturnsLastError(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	wantErr := errors.New("still broken")
	err := p.Do(context.Background(), func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestDoRejectsInvalidAttempts(t *testing.T) {
	p := Policy{}
	if err := p.Do(context.Background(), func() error { return nil }); err == nil {
		t.Fatalf("expected error for zero max attempts")
	}
}

func TestBackoffStreak(t *testing.T) {
	b := NewBackoff(Policy{BaseDelay: time.Second, MaxDelay: 4 * time.Second})

	if got := b.Next(); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := b.Next(); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
	if got := b.Next(); got != 4*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Fatalf("expected streak reset, got %v", got)
	}
}
