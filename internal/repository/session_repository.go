package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

const sessionColumns = `id, subscription_id, therapist_id, resource_id, date, start_time AS "window.start_time", end_time AS "window.end_time", status, sequence, created_at, updated_at`

// SessionRepository persists therapy sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// BeginTxx exposes transactions for multi-row commits.
func (r *SessionRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

// List returns sessions matching the filter, ordered by date then start time.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	base := "FROM sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SubscriptionID != "" {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", len(args)+1))
		args = append(args, filter.SubscriptionID)
	}
	if filter.TherapistID != "" {
		conditions = append(conditions, fmt.Sprintf("therapist_id = $%d", len(args)+1))
		args = append(args, filter.TherapistID)
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)+1))
		args = append(args, filter.ResourceID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if !filter.DateFrom.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY date ASC, start_time ASC LIMIT %d OFFSET %d", sessionColumns, base, limit, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// FindByID returns one session row.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// FindByIDs returns the sessions for the given ids, in date order.
func (r *SessionRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM sessions WHERE id IN (?) ORDER BY date ASC, start_time ASC", sessionColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("build session id query: %w", err)
	}
	query = r.db.Rebind(query)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("find sessions by ids: %w", err)
	}
	return sessions, nil
}

// BulkCreateWithTx inserts generated sessions inside the provided transaction.
func (r *SessionRepository) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.Session) error {
	const query = `INSERT INTO sessions (id, subscription_id, therapist_id, resource_id, date, start_time, end_time, status, sequence, created_at, updated_at)
VALUES (:id, :subscription_id, :therapist_id, :resource_id, :date, :window.start_time, :window.end_time, :status, :sequence, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range sessions {
		if sessions[i].ID == "" {
			sessions[i].ID = uuid.NewString()
		}
		if sessions[i].CreatedAt.IsZero() {
			sessions[i].CreatedAt = now
		}
		sessions[i].UpdatedAt = now
		var exec sqlx.ExtContext = r.db
		if tx != nil {
			exec = tx
		}
		if _, err := sqlx.NamedExecContext(ctx, exec, query, sessions[i]); err != nil {
			return fmt.Errorf("insert session %s: %w", sessions[i].ID, err)
		}
	}
	return nil
}

// UpdatePlacement moves a session to a new placement. It is the single write
// path bulk operations use, so rollbacks can replay it with a prior snapshot.
func (r *SessionRepository) UpdatePlacement(ctx context.Context, id string, placement models.SessionPlacement) error {
	const query = `UPDATE sessions
SET therapist_id = $1, resource_id = $2, date = $3, start_time = $4, end_time = $5, status = $6, updated_at = $7
WHERE id = $8`
	result, err := r.db.ExecContext(ctx, query,
		placement.TherapistID,
		placement.ResourceID,
		placement.Date,
		placement.Window.Start,
		placement.Window.End,
		placement.Status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update session placement: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
