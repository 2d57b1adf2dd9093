package models

import "time"

// RuleID identifies a statically registered optimization rule. Rule order is
// data-driven; the set of rules is a closed enum.
type RuleID string

const (
	RuleMinimizeTherapistGaps RuleID = "MINIMIZE_THERAPIST_GAPS"
	RuleConsistentTimeOfDay   RuleID = "CONSISTENT_TIME_OF_DAY"
	RuleBalanceDailyLoad      RuleID = "BALANCE_DAILY_LOAD"
)

// KnownRuleID reports whether id maps to a registered implementation.
func KnownRuleID(id RuleID) bool {
	switch id {
	case RuleMinimizeTherapistGaps, RuleConsistentTimeOfDay, RuleBalanceDailyLoad:
		return true
	default:
		return false
	}
}

// OptimizationRule is the stored configuration row for a rule.
type OptimizationRule struct {
	ID        string    `db:"id" json:"id"`
	RuleID    RuleID    `db:"rule_id" json:"rule_id"`
	Priority  int       `db:"priority" json:"priority"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RuleStatistics aggregates per-rule application counters.
type RuleStatistics struct {
	RuleID    RuleID `json:"rule_id"`
	Applied   uint64 `json:"applied"`
	Discarded uint64 `json:"discarded"`
}
