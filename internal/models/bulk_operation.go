package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BulkOperationType enumerates supported structural changes.
type BulkOperationType string

const (
	BulkOperationFreeze    BulkOperationType = "FREEZE"
	BulkOperationReassign  BulkOperationType = "REASSIGN"
	BulkOperationMassShift BulkOperationType = "MASS_SHIFT"
)

// BulkOperationStatus captures the operation state machine.
type BulkOperationStatus string

const (
	BulkStatusPending    BulkOperationStatus = "PENDING"
	BulkStatusRunning    BulkOperationStatus = "RUNNING"
	BulkStatusCompleted  BulkOperationStatus = "COMPLETED"
	BulkStatusFailed     BulkOperationStatus = "FAILED"
	BulkStatusCancelled  BulkOperationStatus = "CANCELLED"
	BulkStatusRolledBack BulkOperationStatus = "ROLLED_BACK"
)

// Terminal reports whether no further processing may mutate the operation.
// COMPLETED and CANCELLED still admit the explicit rollback transition.
func (s BulkOperationStatus) Terminal() bool {
	switch s {
	case BulkStatusCompleted, BulkStatusFailed, BulkStatusCancelled, BulkStatusRolledBack:
		return true
	default:
		return false
	}
}

// RollbackEligible reports whether rollback may be requested from this state.
func (s BulkOperationStatus) RollbackEligible() bool {
	return s == BulkStatusCompleted || s == BulkStatusCancelled
}

// BulkOperationParams stores the structural change persisted as JSONB.
type BulkOperationParams struct {
	SubscriptionID string     `json:"subscriptionId,omitempty"`
	SessionIDs     []string   `json:"sessionIds,omitempty"`
	FreezeFrom     *time.Time `json:"freezeFrom,omitempty"`
	FreezeDays     int        `json:"freezeDays,omitempty"`
	NewTherapistID string     `json:"newTherapistId,omitempty"`
	ShiftDays      int        `json:"shiftDays,omitempty"`
	MaxConcurrency int        `json:"maxConcurrency,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p BulkOperationParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal bulk operation params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *BulkOperationParams) Scan(value interface{}) error {
	if value == nil {
		*p = BulkOperationParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for BulkOperationParams", value)
	}
	if len(data) == 0 {
		*p = BulkOperationParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal bulk operation params: %w", err)
	}
	return nil
}

// SessionOutcome is one append-only entry in a bulk operation's ledger. Previous
// holds enough state to reverse the change without recomputation.
type SessionOutcome struct {
	SessionID  string            `json:"session_id"`
	Success    bool              `json:"success"`
	Previous   *SessionPlacement `json:"previous,omitempty"`
	Applied    *SessionPlacement `json:"applied,omitempty"`
	Error      string            `json:"error,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// OutcomeLog is the persisted ledger for a bulk operation.
type OutcomeLog []SessionOutcome

// Value marshals the log to JSON for persistence.
func (l OutcomeLog) Value() (driver.Value, error) {
	if l == nil {
		l = OutcomeLog{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal outcome log: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the log.
func (l *OutcomeLog) Scan(value interface{}) error {
	if value == nil {
		*l = OutcomeLog{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for OutcomeLog", value)
	}
	if len(data) == 0 {
		*l = OutcomeLog{}
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("unmarshal outcome log: %w", err)
	}
	return nil
}

// BulkOperation tracks one long-running batch change over committed sessions.
type BulkOperation struct {
	ID           string              `db:"id" json:"id"`
	Type         BulkOperationType   `db:"type" json:"type"`
	Status       BulkOperationStatus `db:"status" json:"status"`
	Params       BulkOperationParams `db:"params" json:"params"`
	Progress     int                 `db:"progress" json:"progress"`
	Outcomes     OutcomeLog          `db:"outcomes" json:"outcomes"`
	ErrorMessage *string             `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	StartedAt    *time.Time          `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time          `db:"finished_at" json:"finished_at,omitempty"`
	CancelledAt  *time.Time          `db:"cancelled_at" json:"cancelled_at,omitempty"`
	RolledBackAt *time.Time          `db:"rolled_back_at" json:"rolled_back_at,omitempty"`
}

// AffectedSessionIDs lists the ids recorded in the outcome log.
func (o BulkOperation) AffectedSessionIDs() []string {
	ids := make([]string, 0, len(o.Outcomes))
	for _, entry := range o.Outcomes {
		ids = append(ids, entry.SessionID)
	}
	return ids
}
