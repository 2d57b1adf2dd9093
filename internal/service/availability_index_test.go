package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

func slot(id, owner string, weekday int, start, end string) models.AvailabilitySlot {
	return models.AvailabilitySlot{
		ID:        id,
		OwnerID:   owner,
		OwnerType: models.OwnerTypeTherapist,
		Weekday:   weekday,
		Window:    models.TimeWindow{Start: start, End: end},
	}
}

func TestAvailabilityIndexExcludesInvalidSlots(t *testing.T) {
	index := NewAvailabilityIndex([]models.AvailabilitySlot{
		slot("a", "th-1", 1, "09:00", "12:00"),
		slot("b", "th-1", 1, "12:00", "08:00"), // inverted window
		slot("c", "th-1", 9, "09:00", "12:00"), // bad weekday
		slot("d", "th-1", 1, "11:00", "13:00"), // overlaps slot a
		slot("e", "th-1", 2, "11:00", "13:00"),
	}, nil)

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	require.True(t, index.HasOwner("th-1"))
	assert.Len(t, index.SlotsFor("th-1", monday), 1)
	assert.Len(t, index.SlotsFor("th-1", tuesday), 1)
	assert.Equal(t, []int{1, 2}, index.Weekdays("th-1"))
}

func TestAvailabilityIndexValidityRange(t *testing.T) {
	bounded := slot("a", "th-1", 1, "09:00", "12:00")
	bounded.ValidFrom = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	bounded.ValidUntil = time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	index := NewAvailabilityIndex([]models.AvailabilitySlot{bounded}, nil)

	before := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)  // Monday, before range
	within := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)  // Monday, in range
	after := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)   // Monday, after range

	assert.Empty(t, index.SlotsFor("th-1", before))
	assert.Len(t, index.SlotsFor("th-1", within), 1)
	assert.Empty(t, index.SlotsFor("th-1", after))
}

func TestAvailabilityIndexNonOverlappingValidityCoexists(t *testing.T) {
	january := slot("a", "th-1", 1, "09:00", "12:00")
	january.ValidFrom = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	january.ValidUntil = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	february := slot("b", "th-1", 1, "10:00", "13:00")
	february.ValidFrom = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	february.ValidUntil = time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)

	// Same weekday and overlapping clock windows, but disjoint validity
	// ranges: both survive.
	index := NewAvailabilityIndex([]models.AvailabilitySlot{january, february}, nil)
	assert.Len(t, index.SlotsFor("th-1", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)), 1)
	assert.Len(t, index.SlotsFor("th-1", time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)), 1)
}

func TestContainingSlot(t *testing.T) {
	index := NewAvailabilityIndex([]models.AvailabilitySlot{
		slot("a", "th-1", 1, "08:00", "12:00"),
		slot("b", "th-1", 1, "14:00", "17:00"),
	}, nil)
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	found, ok := index.ContainingSlot("th-1", monday, models.TimeWindow{Start: "14:00", End: "15:00"})
	require.True(t, ok)
	assert.Equal(t, "b", found.ID)

	_, ok = index.ContainingSlot("th-1", monday, models.TimeWindow{Start: "11:30", End: "12:30"})
	assert.False(t, ok)

	_, ok = index.ContainingSlot("th-2", monday, models.TimeWindow{Start: "14:00", End: "15:00"})
	assert.False(t, ok)
}
