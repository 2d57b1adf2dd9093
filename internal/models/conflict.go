package models

// ConflictType classifies why a candidate placement fails.
type ConflictType string

const (
	ConflictTimeOverlap           ConflictType = "TIME_OVERLAP"
	ConflictResourceOvercommit    ConflictType = "RESOURCE_OVERCOMMIT"
	ConflictAvailabilityViolation ConflictType = "AVAILABILITY_VIOLATION"
	ConflictConstraintViolation   ConflictType = "CONSTRAINT_VIOLATION"
)

// ConflictSeverity separates conflicts that block a commit from advisory ones.
type ConflictSeverity string

const (
	SeverityBlocking ConflictSeverity = "BLOCKING"
	SeverityWarning  ConflictSeverity = "WARNING"
)

// Conflict is a derived finding about a candidate session. Conflicts are never
// persisted; they are recomputed against current state on every evaluation.
type Conflict struct {
	Type        ConflictType     `json:"type"`
	Severity    ConflictSeverity `json:"severity"`
	SessionIDs  []string         `json:"session_ids,omitempty"`
	Description string           `json:"description"`
}

// Blocking reports whether the conflict prevents commit.
func (c Conflict) Blocking() bool {
	return c.Severity == SeverityBlocking
}

// CountBlocking tallies blocking conflicts in a list.
func CountBlocking(conflicts []Conflict) int {
	n := 0
	for _, c := range conflicts {
		if c.Blocking() {
			n++
		}
	}
	return n
}

// HasBlocking reports whether any conflict in the list blocks commit.
func HasBlocking(conflicts []Conflict) bool {
	return CountBlocking(conflicts) > 0
}
