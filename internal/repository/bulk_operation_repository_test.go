package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

func newBulkOpMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBulkOperationRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newBulkOpMock(t)
	defer cleanup()
	repo := NewBulkOperationRepository(db)

	mock.ExpectExec("INSERT INTO bulk_operations").
		WithArgs(sqlmock.AnyArg(), models.BulkOperationMassShift, models.BulkStatusPending,
			sqlmock.AnyArg(), 0, sqlmock.AnyArg(), nil, sqlmock.AnyArg(), nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	op := &models.BulkOperation{
		Type:   models.BulkOperationMassShift,
		Params: models.BulkOperationParams{SessionIDs: []string{"ses-1"}, ShiftDays: 7},
	}
	require.NoError(t, repo.Create(context.Background(), op))
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, models.BulkStatusPending, op.Status)
	assert.NotNil(t, op.Outcomes)
	assert.False(t, op.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkOperationRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newBulkOpMock(t)
	defer cleanup()
	repo := NewBulkOperationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "type", "status", "params", "progress", "outcomes", "error_message",
		"created_at", "started_at", "finished_at", "cancelled_at", "rolled_back_at",
	}).AddRow("op-1", "MASS_SHIFT", "COMPLETED",
		[]byte(`{"sessionIds":["ses-1"],"shiftDays":7}`), 100,
		[]byte(`[{"session_id":"ses-1","success":true}]`), nil, now, now, now, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+bulkOperationColumns+" FROM bulk_operations WHERE id = $1")).
		WithArgs("op-1").
		WillReturnRows(rows)

	op, err := repo.GetByID(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.BulkStatusCompleted, op.Status)
	assert.Equal(t, []string{"ses-1"}, op.Params.SessionIDs)
	require.Len(t, op.Outcomes, 1)
	assert.True(t, op.Outcomes[0].Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkOperationRepositoryUpdatePartial(t *testing.T) {
	db, mock, cleanup := newBulkOpMock(t)
	defer cleanup()
	repo := NewBulkOperationRepository(db)

	status := models.BulkStatusRunning
	progress := 40
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bulk_operations SET status = $1, progress = $2 WHERE id = $3")).
		WithArgs(status, progress, "op-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "op-1", UpdateBulkOperationParams{
		Status:   &status,
		Progress: &progress,
	})
	require.NoError(t, err)

	// No fields set means no statement issued.
	require.NoError(t, repo.Update(context.Background(), "op-1", UpdateBulkOperationParams{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkOperationRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newBulkOpMock(t)
	defer cleanup()
	repo := NewBulkOperationRepository(db)

	query := regexp.QuoteMeta("UPDATE bulk_operations SET status = $1 WHERE id = $2 AND status = $3")

	mock.ExpectExec(query).
		WithArgs(models.BulkStatusRunning, "op-1", models.BulkStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.TransitionStatus(context.Background(), "op-1", models.BulkStatusPending, models.BulkStatusRunning)
	require.NoError(t, err)
	assert.True(t, ok)

	// A stale expected state matches no row.
	mock.ExpectExec(query).
		WithArgs(models.BulkStatusRunning, "op-1", models.BulkStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.TransitionStatus(context.Background(), "op-1", models.BulkStatusPending, models.BulkStatusRunning)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkOperationRepositoryListUnfinished(t *testing.T) {
	db, mock, cleanup := newBulkOpMock(t)
	defer cleanup()
	repo := NewBulkOperationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "type", "status", "params", "progress", "outcomes", "error_message",
		"created_at", "started_at", "finished_at", "cancelled_at", "rolled_back_at",
	}).
		AddRow("op-1", "FREEZE", "PENDING", []byte(`{}`), 0, []byte(`[]`), nil, now, nil, nil, nil, nil).
		AddRow("op-2", "MASS_SHIFT", "RUNNING", []byte(`{}`), 50, []byte(`[]`), nil, now, now, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+bulkOperationColumns+" FROM bulk_operations WHERE status IN ('PENDING', 'RUNNING') ORDER BY created_at ASC LIMIT $1")).
		WithArgs(100).
		WillReturnRows(rows)

	ops, err := repo.ListUnfinished(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, models.BulkStatusPending, ops[0].Status)
	assert.Equal(t, models.BulkStatusRunning, ops[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
