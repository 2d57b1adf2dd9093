package service

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// AvailabilityIndex holds normalized per-owner availability windows for fast
// date queries. It owns no business logic; the detector and generator query it.
type AvailabilityIndex struct {
	byOwner map[string][]models.AvailabilitySlot
}

// NewAvailabilityIndex normalizes slots into an index. Slots with invalid
// windows, and slots that self-overlap an earlier slot of the same owner on the
// same weekday, violate the availability invariant: they are excluded and
// logged, never silently repaired.
func NewAvailabilityIndex(slots []models.AvailabilitySlot, logger *zap.Logger) *AvailabilityIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	index := &AvailabilityIndex{byOwner: make(map[string][]models.AvailabilitySlot)}

	sorted := make([]models.AvailabilitySlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OwnerID != sorted[j].OwnerID {
			return sorted[i].OwnerID < sorted[j].OwnerID
		}
		if sorted[i].Weekday != sorted[j].Weekday {
			return sorted[i].Weekday < sorted[j].Weekday
		}
		return sorted[i].Window.StartMinute() < sorted[j].Window.StartMinute()
	})

	for _, slot := range sorted {
		if err := slot.Window.Validate(); err != nil {
			logger.Sugar().Warnw("excluding availability slot with invalid window",
				"slot_id", slot.ID, "owner_id", slot.OwnerID, "error", err)
			continue
		}
		if slot.Weekday < 1 || slot.Weekday > 7 {
			logger.Sugar().Warnw("excluding availability slot with invalid weekday",
				"slot_id", slot.ID, "owner_id", slot.OwnerID, "weekday", slot.Weekday)
			continue
		}
		if index.selfOverlaps(slot) {
			logger.Sugar().Warnw("excluding self-overlapping availability slot",
				"slot_id", slot.ID, "owner_id", slot.OwnerID, "weekday", slot.Weekday, "window", slot.Window.String())
			continue
		}
		index.byOwner[slot.OwnerID] = append(index.byOwner[slot.OwnerID], slot)
	}
	return index
}

func (ix *AvailabilityIndex) selfOverlaps(candidate models.AvailabilitySlot) bool {
	for _, slot := range ix.byOwner[candidate.OwnerID] {
		if slot.Weekday == candidate.Weekday && slot.Window.Overlaps(candidate.Window) && overlappingValidity(slot, candidate) {
			return true
		}
	}
	return false
}

func overlappingValidity(a, b models.AvailabilitySlot) bool {
	aFrom, aUntil := validityBounds(a)
	bFrom, bUntil := validityBounds(b)
	return !aFrom.After(bUntil) && !bFrom.After(aUntil)
}

func validityBounds(slot models.AvailabilitySlot) (time.Time, time.Time) {
	from := slot.ValidFrom
	if from.IsZero() {
		from = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	until := slot.ValidUntil
	if until.IsZero() {
		until = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return from, until
}

// HasOwner reports whether any slot survived normalization for the owner.
func (ix *AvailabilityIndex) HasOwner(ownerID string) bool {
	return len(ix.byOwner[ownerID]) > 0
}

// SlotsFor returns the owner's slots active on a calendar date, sorted by start.
func (ix *AvailabilityIndex) SlotsFor(ownerID string, date time.Time) []models.AvailabilitySlot {
	var active []models.AvailabilitySlot
	for _, slot := range ix.byOwner[ownerID] {
		if slot.CoversDate(date) {
			active = append(active, slot)
		}
	}
	return active
}

// ContainingSlot returns the slot that fully contains the window on the date.
func (ix *AvailabilityIndex) ContainingSlot(ownerID string, date time.Time, window models.TimeWindow) (models.AvailabilitySlot, bool) {
	for _, slot := range ix.SlotsFor(ownerID, date) {
		if slot.Window.Contains(window) {
			return slot, true
		}
	}
	return models.AvailabilitySlot{}, false
}

// Weekdays lists the ISO weekdays on which the owner has any slot.
func (ix *AvailabilityIndex) Weekdays(ownerID string) []int {
	seen := make(map[int]bool)
	for _, slot := range ix.byOwner[ownerID] {
		seen[slot.Weekday] = true
	}
	days := make([]int, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Ints(days)
	return days
}
