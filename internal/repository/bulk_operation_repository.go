package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

const bulkOperationColumns = "id, type, status, params, progress, outcomes, error_message, created_at, started_at, finished_at, cancelled_at, rolled_back_at"

// BulkOperationRepository persists bulk operation records and their outcome logs.
type BulkOperationRepository struct {
	db *sqlx.DB
}

// NewBulkOperationRepository constructs the repository.
func NewBulkOperationRepository(db *sqlx.DB) *BulkOperationRepository {
	return &BulkOperationRepository{db: db}
}

// Create inserts a new operation row with generated defaults.
func (r *BulkOperationRepository) Create(ctx context.Context, op *models.BulkOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Status == "" {
		op.Status = models.BulkStatusPending
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	if op.Outcomes == nil {
		op.Outcomes = models.OutcomeLog{}
	}
	const query = `INSERT INTO bulk_operations (id, type, status, params, progress, outcomes, error_message, created_at, started_at, finished_at, cancelled_at, rolled_back_at)
VALUES (:id, :type, :status, :params, :progress, :outcomes, :error_message, :created_at, :started_at, :finished_at, :cancelled_at, :rolled_back_at)`
	if _, err := r.db.NamedExecContext(ctx, query, op); err != nil {
		return fmt.Errorf("create bulk operation: %w", err)
	}
	return nil
}

// GetByID returns an operation row by its identifier.
func (r *BulkOperationRepository) GetByID(ctx context.Context, id string) (*models.BulkOperation, error) {
	query := fmt.Sprintf("SELECT %s FROM bulk_operations WHERE id = $1", bulkOperationColumns)
	var op models.BulkOperation
	if err := r.db.GetContext(ctx, &op, query, id); err != nil {
		return nil, fmt.Errorf("get bulk operation: %w", err)
	}
	return &op, nil
}

// UpdateBulkOperationParams defines the mutable fields of an operation row.
type UpdateBulkOperationParams struct {
	Status       *models.BulkOperationStatus
	Progress     *int
	Outcomes     *models.OutcomeLog
	ErrorMessage *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CancelledAt  *time.Time
	RolledBackAt *time.Time
}

// Update persists the provided changes for an operation row.
func (r *BulkOperationRepository) Update(ctx context.Context, id string, params UpdateBulkOperationParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.Outcomes != nil {
		set = append(set, fmt.Sprintf("outcomes = $%d", argPos))
		args = append(args, *params.Outcomes)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.StartedAt != nil {
		set = append(set, fmt.Sprintf("started_at = $%d", argPos))
		args = append(args, *params.StartedAt)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}
	if params.CancelledAt != nil {
		set = append(set, fmt.Sprintf("cancelled_at = $%d", argPos))
		args = append(args, *params.CancelledAt)
		argPos++
	}
	if params.RolledBackAt != nil {
		set = append(set, fmt.Sprintf("rolled_back_at = $%d", argPos))
		args = append(args, *params.RolledBackAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE bulk_operations SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update bulk operation: %w", err)
	}
	return nil
}

// TransitionStatus updates status only when the row is still in the expected
// state, guarding terminal states against concurrent mutation.
func (r *BulkOperationRepository) TransitionStatus(ctx context.Context, id string, from, to models.BulkOperationStatus) (bool, error) {
	const query = `UPDATE bulk_operations SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition bulk operation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition bulk operation: %w", err)
	}
	return affected == 1, nil
}

// ListUnfinished fetches pending or running operations (cold start recovery).
func (r *BulkOperationRepository) ListUnfinished(ctx context.Context, limit int) ([]models.BulkOperation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM bulk_operations WHERE status IN ('PENDING', 'RUNNING') ORDER BY created_at ASC LIMIT $1`, bulkOperationColumns)
	var ops []models.BulkOperation
	if err := r.db.SelectContext(ctx, &ops, query, limit); err != nil {
		return nil, fmt.Errorf("list unfinished bulk operations: %w", err)
	}
	return ops, nil
}
