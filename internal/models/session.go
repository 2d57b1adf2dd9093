package models

import "time"

// SessionStatus captures the lifecycle of a therapy session.
type SessionStatus string

const (
	SessionStatusProposed  SessionStatus = "PROPOSED"
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Session is the unit being scheduled: one student appointment inside a subscription.
type Session struct {
	ID             string        `db:"id" json:"id"`
	SubscriptionID string        `db:"subscription_id" json:"subscription_id"`
	TherapistID    string        `db:"therapist_id" json:"therapist_id"`
	ResourceID     *string       `db:"resource_id" json:"resource_id,omitempty"`
	Date           time.Time     `db:"date" json:"date"`
	Window         TimeWindow    `json:"window"`
	Status         SessionStatus `db:"status" json:"status"`
	Sequence       int           `db:"sequence" json:"sequence"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Placement extracts the mutable scheduling state of a session.
func (s Session) Placement() SessionPlacement {
	return SessionPlacement{
		TherapistID: s.TherapistID,
		ResourceID:  s.ResourceID,
		Date:        s.Date,
		Window:      s.Window,
		Status:      s.Status,
	}
}

// SessionPlacement is a snapshot of where a session sits on the calendar. Bulk
// operations record these in their outcome log so every change can be reversed.
type SessionPlacement struct {
	TherapistID string        `json:"therapist_id"`
	ResourceID  *string       `json:"resource_id,omitempty"`
	Date        time.Time     `json:"date"`
	Window      TimeWindow    `json:"window"`
	Status      SessionStatus `json:"status"`
}

// Equal compares two placements field by field.
func (p SessionPlacement) Equal(other SessionPlacement) bool {
	if p.TherapistID != other.TherapistID || p.Status != other.Status {
		return false
	}
	if !p.Date.Equal(other.Date) || p.Window != other.Window {
		return false
	}
	if (p.ResourceID == nil) != (other.ResourceID == nil) {
		return false
	}
	if p.ResourceID != nil && *p.ResourceID != *other.ResourceID {
		return false
	}
	return true
}

// SessionFilter constrains session listing queries.
type SessionFilter struct {
	SubscriptionID string
	TherapistID    string
	ResourceID     string
	Status         []SessionStatus
	DateFrom       time.Time
	DateTo         time.Time
	Limit          int
	Offset         int
}
