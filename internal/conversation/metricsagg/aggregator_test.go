package metricsagg

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeMetricStore struct {
	batches [][]domain.MetricEvent
	err     error
}

func (f *fakeMetricStore) InsertMetricEvents(ctx context.Context, events []domain.MetricEvent) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func metricEvent(dealershipID int64, eventType domain.MetricEventType, at time.Time) domain.MetricEvent {
	return domain.MetricEvent{
		ID:           uuid.New(),
		DealershipID: dealershipID,
		EventType:    eventType,
		OccurredAt:   at,
	}
}

func TestRollupCounters(t *testing.T) {
	a := New(&fakeMetricStore{}, Config{}, logger.New("development"))
	day := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)

	a.Record(metricEvent(1, domain.MetricConversationStarted, day))
	a.Record(metricEvent(1, domain.MetricConversationCompleted, day))
	a.Record(metricEvent(1, domain.MetricConversationEscalated, day))
	a.Record(metricEvent(1, domain.MetricConversationFailed, day))
	a.Record(metricEvent(1, domain.MetricTurnFailed, day))

	snap := a.Snapshot(1, day)
	if snap == nil {
		t.Fatalf("expected rollup for recorded day")
	}
	if snap.Started != 1 || snap.Completed != 1 || snap.Escalated != 1 || snap.Failed != 1 || snap.TurnsFailed != 1 {
		t.Fatalf("unexpected rollup: %+v", snap)
	}
}

func TestRollupSentimentAverageAndTokens(t *testing.T) {
	a := New(&fakeMetricStore{}, Config{}, logger.New("development"))
	day := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	for _, s := range []float64{0.2, 0.6, 1.0} {
		ev := metricEvent(3, domain.MetricTurnCompleted, day)
		ev.Sentiment = s
		ev.TokensUsed = 100
		a.Record(ev)
	}

	snap := a.Snapshot(3, day)
	if snap.TurnsCompleted != 3 {
		t.Fatalf("expected 3 turns, got %d", snap.TurnsCompleted)
	}
	if snap.AvgSentiment < 0.599 || snap.AvgSentiment > 0.601 {
		t.Fatalf("expected avg sentiment 0.6, got %v", snap.AvgSentiment)
	}
	if snap.TokensUsed != 300 {
		t.Fatalf("expected 300 tokens, got %d", snap.TokensUsed)
	}
}

func TestRollupCostAndProcessingAverage(t *testing.T) {
	a := New(&fakeMetricStore{}, Config{}, logger.New("development"))
	day := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

	for _, ms := range []int64{400, 800, 1200} {
		ev := metricEvent(4, domain.MetricTurnCompleted, day)
		ev.ProcessingMS = ms
		ev.CostUSD = 0.002
		a.Record(ev)
	}

	snap := a.Snapshot(4, day)
	if snap.AvgProcessingMS < 799.9 || snap.AvgProcessingMS > 800.1 {
		t.Fatalf("expected avg processing 800ms, got %v", snap.AvgProcessingMS)
	}
	if snap.CostUSD < 0.0059 || snap.CostUSD > 0.0061 {
		t.Fatalf("expected summed cost 0.006, got %v", snap.CostUSD)
	}
}

func TestRollupIsolatedPerDealershipAndDay(t *testing.T) {
	a := New(&fakeMetricStore{}, Config{}, logger.New("development"))
	day1 := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 30, 0, 1, 0, 0, time.UTC)

	a.Record(metricEvent(1, domain.MetricConversationStarted, day1))
	a.Record(metricEvent(1, domain.MetricConversationStarted, day2))
	a.Record(metricEvent(2, domain.MetricConversationStarted, day2))

	if snap := a.Snapshot(1, day1); snap.Started != 1 {
		t.Fatalf("expected one start on day1, got %+v", snap)
	}
	if snap := a.Snapshot(1, day2); snap.Started != 1 {
		t.Fatalf("expected one start on day2, got %+v", snap)
	}
	if snap := a.Snapshot(2, day1); snap != nil {
		t.Fatalf("expected no rollup for dealership 2 on day1")
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	a := New(&fakeMetricStore{}, Config{}, logger.New("development"))
	day := time.Now().UTC()

	a.Record(metricEvent(5, domain.MetricConversationStarted, day))

	snap := a.Snapshot(5, day)
	snap.Started = 99

	if again := a.Snapshot(5, day); again.Started != 1 {
		t.Fatalf("snapshot must not alias internal state, got %+v", again)
	}
}

func TestFlushWritesBatchAndClearsBuffer(t *testing.T) {
	store := &fakeMetricStore{}
	a := New(store, Config{BufferSize: 10}, logger.New("development"))

	a.Record(metricEvent(1, domain.MetricConversationStarted, time.Now().UTC()))
	a.Record(metricEvent(1, domain.MetricTurnCompleted, time.Now().UTC()))

	a.flush(context.Background())
	if len(store.batches) != 1 || len(store.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2 events, got %+v", store.batches)
	}

	// Nothing left to flush.
	a.flush(context.Background())
	if len(store.batches) != 1 {
		t.Fatalf("empty buffer must not hit the store")
	}
}

func TestFlushRequeuesBatchOnStoreFailure(t *testing.T) {
	store := &fakeMetricStore{err: errors.New("connection refused")}
	a := New(store, Config{BufferSize: 10}, logger.New("development"))

	first := metricEvent(1, domain.MetricConversationStarted, time.Now().UTC())
	a.Record(first)
	a.flush(context.Background())

	// Store recovers; requeued event flushes together with a newer one,
	// oldest first.
	store.err = nil
	a.Record(metricEvent(1, domain.MetricTurnCompleted, time.Now().UTC()))
	a.flush(context.Background())

	if len(store.batches) != 1 {
		t.Fatalf("expected one successful batch, got %d", len(store.batches))
	}
	batch := store.batches[0]
	if len(batch) != 2 || batch[0].ID != first.ID {
		t.Fatalf("expected requeued event first, got %+v", batch)
	}
}
