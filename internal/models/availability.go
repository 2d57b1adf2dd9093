package models

import "time"

// OwnerType distinguishes who an availability slot belongs to.
type OwnerType string

const (
	OwnerTypeTherapist OwnerType = "THERAPIST"
	OwnerTypeResource  OwnerType = "RESOURCE"
)

// AvailabilitySlot is a recurring bookable window owned by a therapist or a
// resource. Managed externally; read-only to the scheduling core.
type AvailabilitySlot struct {
	ID         string     `db:"id" json:"id"`
	OwnerID    string     `db:"owner_id" json:"owner_id"`
	OwnerType  OwnerType  `db:"owner_type" json:"owner_type"`
	Weekday    int        `db:"weekday" json:"weekday"`
	Window     TimeWindow `json:"window"`
	Capacity   int        `db:"capacity" json:"capacity"`
	ValidFrom  time.Time  `db:"valid_from" json:"valid_from"`
	ValidUntil time.Time  `db:"valid_until" json:"valid_until"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// CoversDate reports whether the slot is active on the given calendar date.
func (s AvailabilitySlot) CoversDate(date time.Time) bool {
	if ISOWeekday(date) != s.Weekday {
		return false
	}
	day := date.Truncate(24 * time.Hour)
	if !s.ValidFrom.IsZero() && day.Before(s.ValidFrom.Truncate(24*time.Hour)) {
		return false
	}
	if !s.ValidUntil.IsZero() && day.After(s.ValidUntil.Truncate(24*time.Hour)) {
		return false
	}
	return true
}

// EffectiveCapacity returns the concurrent booking limit, defaulting to 1.
func (s AvailabilitySlot) EffectiveCapacity() int {
	if s.Capacity <= 0 {
		return 1
	}
	return s.Capacity
}

// ISOWeekday maps a date to ISO numbering, 1=Monday..7=Sunday.
func ISOWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
