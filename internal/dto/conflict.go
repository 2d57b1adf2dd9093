package dto

import (
	"time"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// SessionInput is a candidate session on the wire.
type SessionInput struct {
	ID             string          `json:"id,omitempty"`
	SubscriptionID string          `json:"subscriptionId" validate:"required"`
	TherapistID    string          `json:"therapistId" validate:"required"`
	ResourceID     *string         `json:"resourceId,omitempty"`
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	Window         TimeWindowInput `json:"window" validate:"required"`
}

// Session converts the input into a domain session in PROPOSED state.
func (in SessionInput) Session() models.Session {
	date, _ := time.Parse("2006-01-02", in.Date)
	return models.Session{
		ID:             in.ID,
		SubscriptionID: in.SubscriptionID,
		TherapistID:    in.TherapistID,
		ResourceID:     in.ResourceID,
		Date:           date.UTC(),
		Window:         in.Window.Window(),
		Status:         models.SessionStatusProposed,
	}
}

// ContextInput carries an explicit evaluation context. When omitted the API
// materialises one from stored sessions and availability.
type ContextInput struct {
	ExistingSessions []SessionInput            `json:"existingSessions,omitempty"`
	Availability     []models.AvailabilitySlot `json:"availability,omitempty"`
}

// DetectConflictsRequest asks for single-candidate conflict detection.
type DetectConflictsRequest struct {
	Session     SessionInput  `json:"session" validate:"required"`
	Context     *ContextInput `json:"context,omitempty"`
	Constraints *Constraints  `json:"constraints,omitempty"`
}

// Constraints are request-level scheduling limits, reported as warnings.
type Constraints struct {
	NotBefore string `json:"notBefore,omitempty"`
	NotAfter  string `json:"notAfter,omitempty"`
}

// BatchOptions tune detectBatch evaluation.
type BatchOptions struct {
	Parallel       bool `json:"parallel"`
	MaxConcurrency int  `json:"maxConcurrency" validate:"omitempty,min=1,max=64"`
}

// DetectBatchRequest asks for conflict detection over a candidate batch.
type DetectBatchRequest struct {
	Sessions    []SessionInput `json:"sessions" validate:"required,min=1,dive"`
	Options     BatchOptions   `json:"options"`
	Context     *ContextInput  `json:"context,omitempty"`
	Constraints *Constraints   `json:"constraints,omitempty"`
}

// DetectConflictsResponse returns conflicts plus resolution suggestions.
type DetectConflictsResponse struct {
	Conflicts   []models.Conflict `json:"conflicts"`
	Suggestions []Suggestion      `json:"suggestions,omitempty"`
}

// DetectBatchResponse maps candidate keys to their conflicts.
type DetectBatchResponse struct {
	Results map[string][]models.Conflict `json:"results"`
}

// Suggestion proposes an alternative placement for a blocked candidate.
type Suggestion struct {
	Date                time.Time         `json:"date"`
	Window              models.TimeWindow `json:"window"`
	DisplacementMinutes int               `json:"displacementMinutes"`
}
