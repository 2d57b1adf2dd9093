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
)

func newAvailabilityMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAvailabilityRepositoryListForOwners(t *testing.T) {
	db, mock, cleanup := newAvailabilityMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "owner_type", "weekday",
		"window.start_time", "window.end_time", "capacity", "valid_from", "valid_until", "created_at",
	}).
		AddRow("slot-1", "th-1", "THERAPIST", 1, "08:00", "12:00", 1, time.Time{}, time.Time{}, now).
		AddRow("slot-2", "th-1", "THERAPIST", 1, "13:00", "17:00", 1, from, to, now)

	// NULL validity bounds must come back COALESCEd so they scan into the
	// model's plain time fields as the zero time.
	mock.ExpectQuery(regexp.QuoteMeta(`COALESCE(valid_from, '0001-01-01T00:00:00Z'::timestamptz) AS valid_from, COALESCE(valid_until, '0001-01-01T00:00:00Z'::timestamptz) AS valid_until`) + "(.+)FROM availability_slots").
		WithArgs("th-1", "room-1", to, from).
		WillReturnRows(rows)

	slots, err := repo.ListForOwners(context.Background(), []string{"th-1", "room-1"}, from, to)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "08:00", slots[0].Window.Start)
	assert.Equal(t, "12:00", slots[0].Window.End)
	assert.True(t, slots[0].ValidFrom.IsZero())
	assert.True(t, slots[1].ValidFrom.Equal(from))
	assert.NoError(t, mock.ExpectationsWereMet())

	// No owners short-circuits without a query.
	slots, err = repo.ListForOwners(context.Background(), nil, from, to)
	require.NoError(t, err)
	assert.Nil(t, slots)
}
