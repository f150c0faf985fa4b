package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealerline_backend/internal/conversation/domain"
	"dealerline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationNotFoundMsg = "conversation not found"

// TurnUpdate is the conditional write that advances a conversation by one
// turn. The update only applies while current_turn equals ExpectedTurn and
// the conversation is still active; a redelivered or duplicate job therefore
// matches zero rows instead of double-advancing.
type TurnUpdate struct {
	ConversationID   uuid.UUID
	ExpectedTurn     int
	NewTurn          int
	NewState         domain.State
	EscalationReason *string
}

// Repository provides database operations for conversations.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new conversations repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const conversationColumns = `
	id, lead_id, dealership_id, current_turn, max_turns, state,
	ai_model, temperature, priority, metadata,
	created_at, updated_at, completed_at, escalated_at, escalation_reason, last_error`

// Create inserts a new conversation. If a conversation for the same lead
// already exists the insert is a no-op and created is false; the caller
// reloads the existing row via GetByLeadID.
func (r *Repository) Create(ctx context.Context, c *domain.Context) (bool, error) {
	query := `
		INSERT INTO conversations (
			id, lead_id, dealership_id, current_turn, max_turns, state,
			ai_model, temperature, priority, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (lead_id) DO NOTHING`

	result, err := r.pool.Exec(ctx, query,
		c.ID, c.LeadID, c.DealershipID, c.CurrentTurn, c.MaxTurns, c.State,
		c.AIModel, c.Temperature, c.Priority, c.Metadata, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return false, apperr.Persistence("failed to insert conversation", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetByID retrieves a conversation by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Context, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByLeadID retrieves the conversation created for a lead.
func (r *Repository) GetByLeadID(ctx context.Context, leadID string) (*domain.Context, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE lead_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, leadID))
}

func (r *Repository) scanOne(row pgx.Row) (*domain.Context, error) {
	var c domain.Context
	err := row.Scan(
		&c.ID, &c.LeadID, &c.DealershipID, &c.CurrentTurn, &c.MaxTurns, &c.State,
		&c.AIModel, &c.Temperature, &c.Priority, &c.Metadata,
		&c.CreatedAt, &c.UpdatedAt, &c.CompletedAt, &c.EscalatedAt, &c.EscalationReason, &c.LastError,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(conversationNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

// CompleteTurn appends the turn's messages and advances the conversation in a
// single transaction. Returns false without writing anything when the
// conditional update matches no row, which means another worker already
// advanced this turn or the conversation left the active state.
func (r *Repository) CompleteTurn(ctx context.Context, update TurnUpdate, messages []domain.Message) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, apperr.Persistence("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var completedAt, escalatedAt *time.Time
	switch update.NewState {
	case domain.StateCompleted:
		completedAt = &now
	case domain.StateEscalated:
		escalatedAt = &now
	}

	updateQuery := `
		UPDATE conversations SET
			current_turn = $2, state = $3, updated_at = $4,
			completed_at = COALESCE($5, completed_at),
			escalated_at = COALESCE($6, escalated_at),
			escalation_reason = COALESCE($7, escalation_reason)
		WHERE id = $1 AND current_turn = $8 AND state = 'active'`

	result, err := tx.Exec(ctx, updateQuery,
		update.ConversationID, update.NewTurn, update.NewState, now,
		completedAt, escalatedAt, update.EscalationReason,
		update.ExpectedTurn,
	)
	if err != nil {
		return false, apperr.Persistence("failed to advance conversation turn", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	msgQuery := `
		INSERT INTO conversation_messages (
			id, conversation_id, role, content, turn_number, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, m := range messages {
		if _, err := tx.Exec(ctx, msgQuery,
			m.ID, m.ConversationID, m.Role, m.Content, m.TurnNumber, m.Metadata, m.CreatedAt,
		); err != nil {
			return false, apperr.Persistence("failed to insert conversation message", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Persistence("failed to commit turn", err)
	}
	return true, nil
}

// AppendMessage inserts a single message outside the turn transaction. Used
// for the inbound customer message recorded at conversation creation.
func (r *Repository) AppendMessage(ctx context.Context, m domain.Message) error {
	query := `
		INSERT INTO conversation_messages (
			id, conversation_id, role, content, turn_number, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := r.pool.Exec(ctx, query,
		m.ID, m.ConversationID, m.Role, m.Content, m.TurnNumber, m.Metadata, m.CreatedAt,
	); err != nil {
		return apperr.Persistence("failed to insert conversation message", err)
	}
	return nil
}

// ListMessages retrieves a conversation's messages in turn order.
func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, turn_number, metadata, created_at
		FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY turn_number ASC, created_at ASC`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.TurnNumber, &m.Metadata, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation messages: %w", err)
	}
	return messages, nil
}

// MarkFailed transitions an active conversation to failed. Idempotent: a
// conversation that already left the active state is not touched.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE conversations SET state = 'failed', last_error = $2, updated_at = $3
		WHERE id = $1 AND state = 'active'`

	if _, err := r.pool.Exec(ctx, query, id, reason, time.Now().UTC()); err != nil {
		return apperr.Persistence("failed to mark conversation failed", err)
	}
	return nil
}

// RecordJobFailure appends an audit row for a failed turn attempt.
func (r *Repository) RecordJobFailure(ctx context.Context, f JobFailure) error {
	query := `
		INSERT INTO conversation_queue_jobs (
			id, conversation_id, turn_number, attempt, final, error_kind, error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.pool.Exec(ctx, query,
		uuid.New(), f.ConversationID, f.TurnNumber, f.Attempt, f.Final, f.ErrorKind, f.ErrorMessage, time.Now().UTC(),
	); err != nil {
		return apperr.Persistence("failed to record job failure", err)
	}
	return nil
}

// JobFailure is one failed turn attempt kept for operator triage.
type JobFailure struct {
	ConversationID uuid.UUID
	TurnNumber     int
	Attempt        int
	Final          bool
	ErrorKind      string
	ErrorMessage   string
}

// ListParams filters the dealership conversation listing.
type ListParams struct {
	DealershipID int64
	State        *domain.State
	Page         int
	PageSize     int
}

// ListResult is one page of conversations.
type ListResult struct {
	Items      []domain.Context
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// ListByDealership retrieves conversations for a dealership, newest first.
func (r *Repository) ListByDealership(ctx context.Context, params ListParams) (*ListResult, error) {
	var stateParam any
	if params.State != nil {
		stateParam = string(*params.State)
	}

	baseQuery := `
		FROM conversations
		WHERE dealership_id = $1
			AND ($2::text IS NULL OR state::text = $2)`
	args := []any{params.DealershipID, stateParam}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	totalPages := (total + params.PageSize - 1) / params.PageSize
	offset := (params.Page - 1) * params.PageSize

	selectQuery := `SELECT ` + conversationColumns + baseQuery + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var items []domain.Context
	for rows.Next() {
		var c domain.Context
		if err := rows.Scan(
			&c.ID, &c.LeadID, &c.DealershipID, &c.CurrentTurn, &c.MaxTurns, &c.State,
			&c.AIModel, &c.Temperature, &c.Priority, &c.Metadata,
			&c.CreatedAt, &c.UpdatedAt, &c.CompletedAt, &c.EscalatedAt, &c.EscalationReason, &c.LastError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}
