package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/therapy-scheduler-api/internal/models"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
)

type mockRuleConfig struct {
	rules []models.OptimizationRule
	err   error
}

func (m *mockRuleConfig) ListActive(ctx context.Context) ([]models.OptimizationRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rules, nil
}

func ruleRow(id models.RuleID, priority int) models.OptimizationRule {
	return models.OptimizationRule{ID: string(id), RuleID: id, Priority: priority, Active: true}
}

func newEngine(config *mockRuleConfig) *RuleEngineService {
	return NewRuleEngineService(config, NewConflictService(nil, nil), nil, nil)
}

func TestExecuteClosesGaps(t *testing.T) {
	engine := newEngine(&mockRuleConfig{rules: []models.OptimizationRule{
		ruleRow(models.RuleMinimizeTherapistGaps, 1),
	}})
	sctx := openContext("th-1")
	sessions := []models.Session{
		session("a", "th-1", monday, "09:00", "10:00"),
		session("b", "th-1", monday, "14:00", "15:00"),
	}

	optimized, applied, err := engine.Execute(context.Background(), sessions, sctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RuleID{models.RuleMinimizeTherapistGaps}, applied)
	require.Len(t, optimized, 2)
	assert.Equal(t, models.TimeWindow{Start: "10:00", End: "11:00"}, optimized[1].Window)

	// Input set is never mutated.
	assert.Equal(t, models.TimeWindow{Start: "14:00", End: "15:00"}, sessions[1].Window)
}

func TestExecuteDiscardsWorseningProposal(t *testing.T) {
	engine := newEngine(&mockRuleConfig{rules: []models.OptimizationRule{
		ruleRow(models.RuleMinimizeTherapistGaps, 1),
	}})
	// An existing booking sits exactly where the gap rule wants to move
	// session b, so applying the proposal would create a blocking conflict.
	sctx := openContext("th-1", session("busy", "th-1", monday, "10:00", "11:00"))
	sessions := []models.Session{
		session("a", "th-1", monday, "09:00", "10:00"),
		session("b", "th-1", monday, "14:00", "15:00"),
	}

	optimized, applied, err := engine.Execute(context.Background(), sessions, sctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, sessions, optimized)

	stats := engine.Statistics()
	for _, stat := range stats {
		if stat.RuleID == models.RuleMinimizeTherapistGaps {
			assert.Equal(t, uint64(0), stat.Applied)
			assert.Equal(t, uint64(1), stat.Discarded)
		}
	}
}

func TestExecuteConsistentTimeOfDay(t *testing.T) {
	engine := newEngine(&mockRuleConfig{rules: []models.OptimizationRule{
		ruleRow(models.RuleConsistentTimeOfDay, 1),
	}})
	sctx := openContext("th-1")
	wednesday := monday.AddDate(0, 0, 2)
	friday := monday.AddDate(0, 0, 4)
	sessions := []models.Session{
		session("a", "th-1", monday, "09:00", "10:00"),
		session("b", "th-1", wednesday, "09:00", "10:00"),
		session("c", "th-1", friday, "13:00", "14:00"),
	}

	optimized, applied, err := engine.Execute(context.Background(), sessions, sctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RuleID{models.RuleConsistentTimeOfDay}, applied)
	assert.Equal(t, models.TimeWindow{Start: "09:00", End: "10:00"}, optimized[2].Window)
	assert.True(t, optimized[2].Date.Equal(friday))
}

func TestExecuteBalanceDailyLoad(t *testing.T) {
	engine := newEngine(&mockRuleConfig{rules: []models.OptimizationRule{
		ruleRow(models.RuleBalanceDailyLoad, 1),
	}})
	sctx := openContext("th-1")
	tuesday := monday.AddDate(0, 0, 1)
	sessions := []models.Session{
		session("a", "th-1", monday, "09:00", "10:00"),
		session("b", "th-1", monday, "10:00", "11:00"),
		session("c", "th-1", monday, "11:00", "12:00"),
		session("d", "th-1", tuesday, "11:00", "12:00"),
	}

	optimized, applied, err := engine.Execute(context.Background(), sessions, sctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RuleID{models.RuleBalanceDailyLoad}, applied)

	perDay := map[string]int{}
	for _, s := range optimized {
		perDay[s.Date.Format("2006-01-02")]++
	}
	assert.Equal(t, 2, perDay[monday.Format("2006-01-02")])
	assert.Equal(t, 2, perDay[tuesday.Format("2006-01-02")])
}

func TestExecuteSkipsUnknownRuleIDs(t *testing.T) {
	engine := newEngine(&mockRuleConfig{rules: []models.OptimizationRule{
		{ID: "x", RuleID: models.RuleID("NO_SUCH_RULE"), Priority: 1, Active: true},
	}})
	sctx := openContext("th-1")
	sessions := []models.Session{session("a", "th-1", monday, "09:00", "10:00")}

	optimized, applied, err := engine.Execute(context.Background(), sessions, sctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, sessions, optimized)
}

func TestExecuteRuleConfigUnavailable(t *testing.T) {
	engine := newEngine(&mockRuleConfig{err: errors.New("connection refused")})
	sessions := []models.Session{session("a", "th-1", monday, "09:00", "10:00")}

	_, _, err := engine.Execute(context.Background(), sessions, openContext("th-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErr.Code)
}

func TestStatisticsAccumulate(t *testing.T) {
	engine := newEngine(&mockRuleConfig{rules: []models.OptimizationRule{
		ruleRow(models.RuleMinimizeTherapistGaps, 1),
	}})
	sctx := openContext("th-1")
	sessions := []models.Session{
		session("a", "th-1", monday, "09:00", "10:00"),
		session("b", "th-1", monday, "14:00", "15:00"),
	}

	for i := 0; i < 3; i++ {
		_, _, err := engine.Execute(context.Background(), sessions, sctx)
		require.NoError(t, err)
	}

	var gaps models.RuleStatistics
	for _, stat := range engine.Statistics() {
		if stat.RuleID == models.RuleMinimizeTherapistGaps {
			gaps = stat
		}
	}
	assert.Equal(t, uint64(3), gaps.Applied)
	assert.Equal(t, uint64(0), gaps.Discarded)
}
