package repository

import (
	"context"
	"fmt"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/platform/apperr"
)

// InsertMetricEvents writes a flushed batch of metric events in one
// transaction. The batch either lands whole or not at all, so the aggregator
// can requeue it safely on error.
func (r *Repository) InsertMetricEvents(ctx context.Context, events []domain.MetricEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Persistence("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversation_metrics (
			id, dealership_id, conversation_id, event_type, turn_number,
			tokens_used, cost_usd, processing_ms, sentiment, intent, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for _, ev := range events {
		if _, err := tx.Exec(ctx, query,
			ev.ID, ev.DealershipID, ev.ConversationID, ev.EventType, ev.TurnNumber,
			ev.TokensUsed, ev.CostUSD, ev.ProcessingMS, ev.Sentiment, ev.Intent, ev.OccurredAt,
		); err != nil {
			return apperr.Persistence("failed to insert metric event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Persistence("failed to commit metric batch", err)
	}
	return nil
}

// DailyMetrics aggregates the stored metric events for one dealership and day.
func (r *Repository) DailyMetrics(ctx context.Context, dealershipID int64, day time.Time) (*domain.DailyMetrics, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT
			COUNT(*) FILTER (WHERE event_type = 'conversation_started'),
			COUNT(*) FILTER (WHERE event_type = 'turn_completed'),
			COUNT(*) FILTER (WHERE event_type = 'turn_failed'),
			COUNT(*) FILTER (WHERE event_type = 'conversation_completed'),
			COUNT(*) FILTER (WHERE event_type = 'conversation_escalated'),
			COUNT(*) FILTER (WHERE event_type = 'conversation_failed'),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(SUM(cost_usd), 0)::float8,
			COALESCE(AVG(sentiment) FILTER (WHERE event_type = 'turn_completed'), 0)::float8,
			COALESCE(AVG(processing_ms) FILTER (WHERE event_type = 'turn_completed'), 0)::float8
		FROM conversation_metrics
		WHERE dealership_id = $1 AND occurred_at >= $2 AND occurred_at < $3`

	m := domain.DailyMetrics{DealershipID: dealershipID, Day: dayStart}
	err := r.pool.QueryRow(ctx, query, dealershipID, dayStart, dayEnd).Scan(
		&m.Started, &m.TurnsCompleted, &m.TurnsFailed,
		&m.Completed, &m.Escalated, &m.Failed,
		&m.TokensUsed, &m.CostUSD, &m.AvgSentiment, &m.AvgProcessingMS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily metrics: %w", err)
	}
	return &m, nil
}

// EngineStats is the process-wide conversation summary for the health report.
type EngineStats struct {
	TotalConversations  int
	ActiveConversations int
	AvgTurns            float64
	AvgResponseMS       float64
}

// EngineStatsSince summarizes conversations touched after the cutoff:
// totals, active count, average turns, and the average generation latency of
// completed turns in the window.
func (r *Repository) EngineStatsSince(ctx context.Context, cutoff time.Time) (EngineStats, error) {
	var s EngineStats

	convQuery := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE state = 'active'),
			COALESCE(AVG(current_turn), 0)::float8
		FROM conversations
		WHERE updated_at >= $1`
	if err := r.pool.QueryRow(ctx, convQuery, cutoff).Scan(
		&s.TotalConversations, &s.ActiveConversations, &s.AvgTurns,
	); err != nil {
		return EngineStats{}, fmt.Errorf("failed to summarize conversations: %w", err)
	}

	respQuery := `
		SELECT COALESCE(AVG(processing_ms), 0)::float8
		FROM conversation_metrics
		WHERE event_type = 'turn_completed' AND occurred_at >= $1`
	if err := r.pool.QueryRow(ctx, respQuery, cutoff).Scan(&s.AvgResponseMS); err != nil {
		return EngineStats{}, fmt.Errorf("failed to summarize response times: %w", err)
	}

	return s, nil
}

// StateCounts is the per-state conversation count for one dealership.
type StateCounts struct {
	DealershipID int64
	Active       int
	Paused       int
	Completed    int
	Escalated    int
	Failed       int
}

// Total returns the number of conversations across all states.
func (s StateCounts) Total() int {
	return s.Active + s.Paused + s.Completed + s.Escalated + s.Failed
}

// StateCountsSince returns conversation counts by state for every dealership
// with activity after the cutoff. The health monitor samples this to classify
// dealerships.
func (r *Repository) StateCountsSince(ctx context.Context, cutoff time.Time) ([]StateCounts, error) {
	query := `
		SELECT dealership_id,
			COUNT(*) FILTER (WHERE state = 'active'),
			COUNT(*) FILTER (WHERE state = 'paused'),
			COUNT(*) FILTER (WHERE state = 'completed'),
			COUNT(*) FILTER (WHERE state = 'escalated'),
			COUNT(*) FILTER (WHERE state = 'failed')
		FROM conversations
		WHERE updated_at >= $1
		GROUP BY dealership_id
		ORDER BY dealership_id`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query state counts: %w", err)
	}
	defer rows.Close()

	var counts []StateCounts
	for rows.Next() {
		var c StateCounts
		if err := rows.Scan(&c.DealershipID, &c.Active, &c.Paused, &c.Completed, &c.Escalated, &c.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan state counts: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state counts: %w", err)
	}
	return counts, nil
}
