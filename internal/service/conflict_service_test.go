package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/models"
)

var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func session(id, therapist string, date time.Time, start, end string) models.Session {
	return models.Session{
		ID:          id,
		TherapistID: therapist,
		Date:        date,
		Window:      models.TimeWindow{Start: start, End: end},
		Status:      models.SessionStatusScheduled,
	}
}

func openContext(therapist string, existing ...models.Session) SchedulingContext {
	slots := []models.AvailabilitySlot{}
	for day := 1; day <= 5; day++ {
		slots = append(slots, models.AvailabilitySlot{
			ID:      therapist + "-slot",
			OwnerID: therapist,
			Weekday: day,
			Window:  models.TimeWindow{Start: "08:00", End: "18:00"},
		})
	}
	return SchedulingContext{
		Existing:     existing,
		Availability: NewAvailabilityIndex(slots, nil),
	}
}

func TestDetectNoConflicts(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1", session("s-1", "th-1", monday, "09:00", "10:00"))

	conflicts := detector.Detect(session("cand", "th-1", monday, "10:00", "11:00"), sctx)
	assert.Empty(t, conflicts)
}

func TestDetectTherapistOverlap(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1", session("s-1", "th-1", monday, "09:00", "10:00"))

	conflicts := detector.Detect(session("cand", "th-1", monday, "09:30", "10:30"), sctx)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTimeOverlap, conflicts[0].Type)
	assert.Equal(t, models.SeverityBlocking, conflicts[0].Severity)
	assert.Equal(t, []string{"s-1"}, conflicts[0].SessionIDs)
}

func TestDetectIgnoresCancelledAndSelf(t *testing.T) {
	detector := NewConflictService(nil, nil)
	cancelled := session("s-1", "th-1", monday, "09:00", "10:00")
	cancelled.Status = models.SessionStatusCancelled
	sctx := openContext("th-1", cancelled, session("cand", "th-1", monday, "09:00", "10:00"))

	// The candidate's own stored row and the cancelled session must not block.
	conflicts := detector.Detect(session("cand", "th-1", monday, "09:00", "10:00"), sctx)
	assert.Empty(t, conflicts)
}

func TestDetectCapacityOvercommit(t *testing.T) {
	detector := NewConflictService(nil, nil)
	group := models.AvailabilitySlot{
		ID:       "grp",
		OwnerID:  "th-1",
		Weekday:  1,
		Window:   models.TimeWindow{Start: "08:00", End: "18:00"},
		Capacity: 2,
	}
	sctx := SchedulingContext{
		Existing:     []models.Session{session("s-1", "th-1", monday, "09:00", "10:00")},
		Availability: NewAvailabilityIndex([]models.AvailabilitySlot{group}, nil),
	}

	// One overlap within capacity 2: no conflict.
	conflicts := detector.Detect(session("cand", "th-1", monday, "09:00", "10:00"), sctx)
	assert.Empty(t, conflicts)

	// A second overlap exceeds capacity.
	sctx.Existing = append(sctx.Existing, session("s-2", "th-1", monday, "09:00", "10:00"))
	conflicts = detector.Detect(session("cand", "th-1", monday, "09:00", "10:00"), sctx)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictResourceOvercommit, conflicts[0].Type)
}

func TestDetectAvailabilityViolation(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1")

	conflicts := detector.Detect(session("cand", "th-1", monday, "07:00", "08:00"), sctx)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictAvailabilityViolation, conflicts[0].Type)

	// Saturday: no weekday slot at all.
	saturday := monday.AddDate(0, 0, 5)
	conflicts = detector.Detect(session("cand", "th-1", saturday, "09:00", "10:00"), sctx)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictAvailabilityViolation, conflicts[0].Type)
}

func TestDetectConstraintWarning(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1")
	sctx.Constraints = &dto.Constraints{NotBefore: "10:00", NotAfter: "16:00"}

	conflicts := detector.Detect(session("cand", "th-1", monday, "09:00", "10:00"), sctx)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictConstraintViolation, conflicts[0].Type)
	assert.Equal(t, models.SeverityWarning, conflicts[0].Severity)
	assert.False(t, models.HasBlocking(conflicts))
}

func TestDetectIsIdempotent(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1", session("s-1", "th-1", monday, "09:00", "10:00"))
	candidate := session("cand", "th-1", monday, "09:30", "10:30")

	first := detector.Detect(candidate, sctx)
	second := detector.Detect(candidate, sctx)
	assert.Equal(t, first, second)
}

func TestDetectBatchFirstSubmittedWins(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1")

	results := detector.DetectBatch([]models.Session{
		session("a", "th-1", monday, "09:00", "10:00"),
		session("b", "th-1", monday, "09:00", "10:00"),
	}, sctx, dto.BatchOptions{})

	require.Len(t, results, 2)
	assert.Empty(t, results["a"])
	require.Len(t, results["b"], 1)
	assert.Equal(t, models.ConflictTimeOverlap, results["b"][0].Type)
	assert.Equal(t, []string{"a"}, results["b"][0].SessionIDs)
}

func TestDetectBatchBlockedCandidateDoesNotJoinWorkingSet(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1", session("s-1", "th-1", monday, "09:00", "10:00"))

	results := detector.DetectBatch([]models.Session{
		session("a", "th-1", monday, "09:00", "10:00"), // blocked by s-1
		session("b", "th-1", monday, "09:00", "10:00"), // blocked by s-1, not by a
	}, sctx, dto.BatchOptions{})

	require.Len(t, results["a"], 1)
	require.Len(t, results["b"], 1)
	assert.Equal(t, []string{"s-1"}, results["b"][0].SessionIDs)
}

func TestDetectBatchParallelMatchesSequential(t *testing.T) {
	detector := NewConflictService(nil, nil)
	slots := []models.AvailabilitySlot{}
	for day := 1; day <= 5; day++ {
		for _, owner := range []string{"th-1", "th-2"} {
			slots = append(slots, models.AvailabilitySlot{
				ID: owner + "-slot", OwnerID: owner, Weekday: day,
				Window: models.TimeWindow{Start: "08:00", End: "18:00"},
			})
		}
	}
	sctx := SchedulingContext{Availability: NewAvailabilityIndex(slots, nil)}

	candidates := []models.Session{
		session("a", "th-1", monday, "09:00", "10:00"),
		session("b", "th-2", monday, "09:00", "10:00"),
		session("c", "th-1", monday, "09:30", "10:30"),
		session("d", "th-2", monday, "11:00", "12:00"),
	}

	sequential := detector.DetectBatch(candidates, sctx, dto.BatchOptions{})
	parallel := detector.DetectBatch(candidates, sctx, dto.BatchOptions{Parallel: true, MaxConcurrency: 2})
	assert.Equal(t, sequential, parallel)
}

func TestResolutionSuggestionsRankedByDisplacement(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1", session("s-1", "th-1", monday, "09:00", "10:00"))
	candidate := session("cand", "th-1", monday, "09:00", "10:00")

	conflicts := detector.Detect(candidate, sctx)
	require.True(t, models.HasBlocking(conflicts))

	suggestions := detector.ResolutionSuggestions(conflicts, candidate, sctx, 7, 5)
	require.NotEmpty(t, suggestions)
	assert.Len(t, suggestions, 5)
	for i := 1; i < len(suggestions); i++ {
		assert.LessOrEqual(t, suggestions[i-1].DisplacementMinutes, suggestions[i].DisplacementMinutes)
	}

	// Closest free slot on the same day is one hour away.
	first := suggestions[0]
	assert.True(t, first.Date.Equal(monday))
	assert.Equal(t, 60, first.DisplacementMinutes)

	// Every suggestion must itself be conflict-free.
	for _, suggestion := range suggestions {
		moved := candidate
		moved.Date = suggestion.Date
		moved.Window = suggestion.Window
		assert.False(t, models.HasBlocking(detector.Detect(moved, sctx)))
	}
}

func TestResolutionSuggestionsRequireBlockingConflict(t *testing.T) {
	detector := NewConflictService(nil, nil)
	sctx := openContext("th-1")
	candidate := session("cand", "th-1", monday, "09:00", "10:00")

	assert.Nil(t, detector.ResolutionSuggestions(nil, candidate, sctx, 7, 5))
	warning := []models.Conflict{{Type: models.ConflictConstraintViolation, Severity: models.SeverityWarning}}
	assert.Nil(t, detector.ResolutionSuggestions(warning, candidate, sctx, 7, 5))
}

func TestConflictMetricsSkipSuggestionScans(t *testing.T) {
	metrics := NewMetricsService()
	detector := NewConflictService(nil, metrics)
	sctx := openContext("th-1", session("s-1", "th-1", monday, "09:00", "10:00"))
	candidate := session("cand", "th-1", monday, "09:00", "10:00")

	overlaps := metrics.conflictsTotal.WithLabelValues(string(models.ConflictTimeOverlap))

	conflicts := detector.Detect(candidate, sctx)
	require.True(t, models.HasBlocking(conflicts))
	assert.Equal(t, float64(1), testutil.ToFloat64(overlaps))

	// Suggestion scanning evaluates many hypothetical placements. None of
	// those evaluations reach a caller, so none of them count.
	suggestions := detector.ResolutionSuggestions(conflicts, candidate, sctx, 7, 5)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, float64(1), testutil.ToFloat64(overlaps))
}
