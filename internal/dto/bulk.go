package dto

import (
	"time"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// BulkReschedulingRequest describes one structural change over committed sessions.
// Exactly one of SubscriptionID / SessionIDs selects the affected set.
type BulkReschedulingRequest struct {
	Type           models.BulkOperationType `json:"type" validate:"required,oneof=FREEZE REASSIGN MASS_SHIFT"`
	SubscriptionID string                   `json:"subscriptionId,omitempty"`
	SessionIDs     []string                 `json:"sessionIds,omitempty"`
	FreezeFrom     string                   `json:"freezeFrom,omitempty" validate:"omitempty,datetime=2006-01-02"`
	FreezeDays     int                      `json:"freezeDays,omitempty" validate:"omitempty,min=1,max=365"`
	NewTherapistID string                   `json:"newTherapistId,omitempty"`
	ShiftDays      int                      `json:"shiftDays,omitempty" validate:"omitempty,min=-365,max=365"`
	MaxConcurrency int                      `json:"maxConcurrency,omitempty" validate:"omitempty,min=1,max=32"`
}

// BulkOperationResult acknowledges an accepted bulk request.
type BulkOperationResult struct {
	OperationID string                     `json:"operationId"`
	Status      models.BulkOperationStatus `json:"status"`
}

// OperationProgress is a point-in-time progress snapshot.
type OperationProgress struct {
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OperationStatusResponse combines the stored operation with live progress.
type OperationStatusResponse struct {
	Operation models.BulkOperation `json:"operation"`
	Progress  OperationProgress    `json:"progress"`
}

// RollbackConflict reports a session whose prior state could not be restored
// because it was modified after the operation ran.
type RollbackConflict struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// RollbackResponse summarises a rollback pass.
type RollbackResponse struct {
	OperationID string                     `json:"operationId"`
	Status      models.BulkOperationStatus `json:"status"`
	Restored    []string                   `json:"restored"`
	Conflicts   []RollbackConflict         `json:"conflicts,omitempty"`
}
