package service

import (
	"sort"
	"time"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// PlacementChange is one rule-proposed move for a single session.
type PlacementChange struct {
	SessionID string
	Date      time.Time
	Window    models.TimeWindow
}

// OptimizationRule inspects a session set and proposes placement changes. Rules
// never apply changes themselves; the engine validates every proposal first.
type OptimizationRule interface {
	ID() models.RuleID
	Apply(sessions []models.Session, sctx SchedulingContext) []PlacementChange
}

// ruleRegistry maps the closed RuleID enum to implementations. Ordering and
// activation are configuration; this set is compiled in.
func ruleRegistry() map[models.RuleID]OptimizationRule {
	return map[models.RuleID]OptimizationRule{
		models.RuleMinimizeTherapistGaps: minimizeTherapistGaps{},
		models.RuleConsistentTimeOfDay:   consistentTimeOfDay{},
		models.RuleBalanceDailyLoad:      balanceDailyLoad{},
	}
}

// minimizeTherapistGaps pulls a session earlier when it trails an idle gap
// behind the therapist's previous session on the same day.
type minimizeTherapistGaps struct{}

func (minimizeTherapistGaps) ID() models.RuleID { return models.RuleMinimizeTherapistGaps }

func (minimizeTherapistGaps) Apply(sessions []models.Session, sctx SchedulingContext) []PlacementChange {
	byDay := make(map[string][]models.Session)
	for _, session := range sessions {
		key := session.TherapistID + session.Date.Format("2006-01-02")
		byDay[key] = append(byDay[key], session)
	}

	var changes []PlacementChange
	keys := sortedKeys(byDay)
	for _, key := range keys {
		day := byDay[key]
		if len(day) < 2 {
			continue
		}
		sort.Slice(day, func(i, j int) bool {
			return day[i].Window.StartMinute() < day[j].Window.StartMinute()
		})
		for i := 1; i < len(day); i++ {
			prevEnd := day[i-1].Window.EndMinute()
			gap := day[i].Window.StartMinute() - prevEnd
			if gap <= 0 {
				continue
			}
			duration := int(day[i].Window.Duration().Minutes())
			changes = append(changes, PlacementChange{
				SessionID: day[i].ID,
				Date:      day[i].Date,
				Window:    models.NewTimeWindow(prevEnd, prevEnd+duration),
			})
		}
	}
	return changes
}

// consistentTimeOfDay aligns outlier sessions to the set's most common start time.
type consistentTimeOfDay struct{}

func (consistentTimeOfDay) ID() models.RuleID { return models.RuleConsistentTimeOfDay }

func (consistentTimeOfDay) Apply(sessions []models.Session, sctx SchedulingContext) []PlacementChange {
	if len(sessions) < 2 {
		return nil
	}
	starts := make(map[int]int)
	for _, session := range sessions {
		starts[session.Window.StartMinute()]++
	}
	modal, modalCount := 0, 0
	for start, count := range starts {
		if count > modalCount || (count == modalCount && start < modal) {
			modal, modalCount = start, count
		}
	}
	if modalCount < 2 {
		return nil
	}

	var changes []PlacementChange
	for _, session := range sessions {
		if session.Window.StartMinute() == modal {
			continue
		}
		duration := int(session.Window.Duration().Minutes())
		if modal+duration > 24*60 {
			continue
		}
		changes = append(changes, PlacementChange{
			SessionID: session.ID,
			Date:      session.Date,
			Window:    models.NewTimeWindow(modal, modal+duration),
		})
	}
	return changes
}

// balanceDailyLoad moves one session off the therapist's heaviest day onto the
// lightest day of the same week when the imbalance exceeds one session.
type balanceDailyLoad struct{}

func (balanceDailyLoad) ID() models.RuleID { return models.RuleBalanceDailyLoad }

func (balanceDailyLoad) Apply(sessions []models.Session, sctx SchedulingContext) []PlacementChange {
	byTherapist := make(map[string][]models.Session)
	for _, session := range sessions {
		byTherapist[session.TherapistID] = append(byTherapist[session.TherapistID], session)
	}

	var changes []PlacementChange
	for _, therapist := range sortedKeys(byTherapist) {
		counts := make(map[string]int)
		for _, session := range byTherapist[therapist] {
			counts[session.Date.Format("2006-01-02")]++
		}
		if len(counts) < 2 {
			continue
		}
		heavyDay, lightDay := "", ""
		for _, day := range sortedKeys(counts) {
			if heavyDay == "" || counts[day] > counts[heavyDay] {
				heavyDay = day
			}
			if lightDay == "" || counts[day] < counts[lightDay] {
				lightDay = day
			}
		}
		if counts[heavyDay]-counts[lightDay] < 2 {
			continue
		}
		target, _ := time.Parse("2006-01-02", lightDay)
		for _, session := range byTherapist[therapist] {
			if session.Date.Format("2006-01-02") != heavyDay {
				continue
			}
			changes = append(changes, PlacementChange{
				SessionID: session.ID,
				Date:      target.UTC(),
				Window:    session.Window,
			})
			break
		}
	}
	return changes
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
