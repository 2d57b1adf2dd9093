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

func TestRuleRepositoryListActive(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewRuleRepository(sqlx.NewDb(db, "sqlmock"))

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "rule_id", "priority", "active", "created_at", "updated_at"}).
		AddRow("rule-1", "MINIMIZE_THERAPIST_GAPS", 10, true, now, now).
		AddRow("rule-2", "BALANCE_DAILY_LOAD", 20, true, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, rule_id, priority, active, created_at, updated_at\nFROM optimization_rules WHERE active = TRUE ORDER BY priority ASC")).
		WillReturnRows(rows)

	rules, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, models.RuleMinimizeTherapistGaps, rules[0].RuleID)
	assert.Equal(t, 10, rules[0].Priority)
	assert.NoError(t, mock.ExpectationsWereMet())
}
