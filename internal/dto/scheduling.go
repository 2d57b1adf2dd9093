package dto

import (
	"time"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// TimeWindowInput mirrors models.TimeWindow on the wire.
type TimeWindowInput struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// Window converts the input to the domain type.
func (w TimeWindowInput) Window() models.TimeWindow {
	return models.TimeWindow{Start: w.Start, End: w.End}
}

// SchedulingRequest describes the desired cadence for one subscription. Immutable
// once submitted; consumed by the schedule generator.
type SchedulingRequest struct {
	SubscriptionID  string  `json:"subscriptionId" validate:"required"`
	TherapistID     string  `json:"therapistId" validate:"required"`
	ResourceID      *string `json:"resourceId,omitempty"`
	SessionsPerWeek int     `json:"sessionsPerWeek" validate:"required,min=1,max=14"`
	DurationMinutes int     `json:"durationMinutes" validate:"required,min=15,max=480"`
	StartDate       string  `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate         string  `json:"endDate" validate:"required,datetime=2006-01-02"`
	PreferredDays   []int   `json:"preferredDays" validate:"omitempty,dive,min=1,max=7"`
	PreferredStart  string  `json:"preferredStart,omitempty"`
	NotBefore       string  `json:"notBefore,omitempty"`
	NotAfter        string  `json:"notAfter,omitempty"`
}

// DateRange parses the request bounds. Validation tags guarantee the layout.
func (r SchedulingRequest) DateRange() (time.Time, time.Time) {
	start, _ := time.Parse("2006-01-02", r.StartDate)
	end, _ := time.Parse("2006-01-02", r.EndDate)
	return start.UTC(), end.UTC()
}

// ScheduleOutcome summarises how far a generation request was satisfied.
type ScheduleOutcome string

const (
	OutcomeFullySatisfied     ScheduleOutcome = "FULLY_SATISFIED"
	OutcomePartiallySatisfied ScheduleOutcome = "PARTIALLY_SATISFIED"
	OutcomeUnsatisfied        ScheduleOutcome = "UNSATISFIED"
)

// UnresolvedCandidate reports a cadence slot the generator could not place.
type UnresolvedCandidate struct {
	Sequence  int               `json:"sequence"`
	Date      time.Time         `json:"date"`
	Window    models.TimeWindow `json:"window"`
	Conflicts []models.Conflict `json:"conflicts"`
}

// GenerateScheduleResponse returns the proposed calendar for a subscription.
type GenerateScheduleResponse struct {
	ProposalID   string                `json:"proposalId"`
	Outcome      ScheduleOutcome       `json:"outcome"`
	Sessions     []models.Session      `json:"sessions"`
	Unresolved   []UnresolvedCandidate `json:"unresolved"`
	AppliedRules []models.RuleID       `json:"appliedRules"`
	Warnings     []models.Conflict     `json:"warnings,omitempty"`
}

// CommitScheduleResponse acknowledges a committed proposal.
type CommitScheduleResponse struct {
	SessionIDs []string          `json:"sessionIds"`
	Rejected   []models.Conflict `json:"rejected,omitempty"`
}
