package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// SchedulingContext is the snapshot a detection call evaluates against. The
// caller materialises it once per operation; the detector never fetches.
type SchedulingContext struct {
	Existing     []models.Session
	Availability *AvailabilityIndex
	Constraints  *dto.Constraints
}

// ConflictService detects scheduling conflicts for candidate sessions. Detection
// is a pure function of (candidate, context): identical inputs yield identical
// conflict lists and inputs are never mutated.
type ConflictService struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewConflictService constructs the detector.
func NewConflictService(logger *zap.Logger, metrics *MetricsService) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{logger: logger, metrics: metrics}
}

// Detect runs the four conflict checks in order: time overlap, capacity,
// availability containment, request-level constraints. Detected conflicts are
// recorded in metrics; internal hypothetical evaluations use detect instead.
func (s *ConflictService) Detect(candidate models.Session, sctx SchedulingContext) []models.Conflict {
	conflicts := s.detect(candidate, sctx)
	s.record(conflicts)
	return conflicts
}

// record counts conflicts that were surfaced to a caller.
func (s *ConflictService) record(conflicts []models.Conflict) {
	if s.metrics == nil {
		return
	}
	for _, c := range conflicts {
		s.metrics.RecordConflict(c.Type)
	}
}

// detect is the metric-free core shared by Detect and hypothetical evaluations
// such as suggestion scanning, where the conflicts never reach a caller.
func (s *ConflictService) detect(candidate models.Session, sctx SchedulingContext) []models.Conflict {
	conflicts := make([]models.Conflict, 0, 2)

	therapistOverlaps := s.overlappingSessions(candidate, sctx.Existing, func(existing models.Session) bool {
		return existing.TherapistID == candidate.TherapistID
	})
	resourceOverlaps := s.overlappingSessions(candidate, sctx.Existing, func(existing models.Session) bool {
		return candidate.ResourceID != nil && existing.ResourceID != nil && *existing.ResourceID == *candidate.ResourceID
	})

	therapistCapacity := s.slotCapacity(sctx, candidate.TherapistID, candidate)
	if len(therapistOverlaps) > 0 {
		if therapistCapacity <= 1 {
			conflicts = append(conflicts, models.Conflict{
				Type:        models.ConflictTimeOverlap,
				Severity:    models.SeverityBlocking,
				SessionIDs:  sessionIDs(therapistOverlaps),
				Description: fmt.Sprintf("therapist %s already booked %s on %s", candidate.TherapistID, candidate.Window, candidate.Date.Format("2006-01-02")),
			})
		} else if len(therapistOverlaps)+1 > therapistCapacity {
			conflicts = append(conflicts, models.Conflict{
				Type:        models.ConflictResourceOvercommit,
				Severity:    models.SeverityBlocking,
				SessionIDs:  sessionIDs(therapistOverlaps),
				Description: fmt.Sprintf("therapist %s slot capacity %d exceeded at %s", candidate.TherapistID, therapistCapacity, candidate.Window),
			})
		}
	}

	if candidate.ResourceID != nil && len(resourceOverlaps) > 0 {
		resourceCapacity := s.slotCapacity(sctx, *candidate.ResourceID, candidate)
		if resourceCapacity <= 1 {
			conflicts = append(conflicts, models.Conflict{
				Type:        models.ConflictTimeOverlap,
				Severity:    models.SeverityBlocking,
				SessionIDs:  sessionIDs(resourceOverlaps),
				Description: fmt.Sprintf("resource %s already booked %s on %s", *candidate.ResourceID, candidate.Window, candidate.Date.Format("2006-01-02")),
			})
		} else if len(resourceOverlaps)+1 > resourceCapacity {
			conflicts = append(conflicts, models.Conflict{
				Type:        models.ConflictResourceOvercommit,
				Severity:    models.SeverityBlocking,
				SessionIDs:  sessionIDs(resourceOverlaps),
				Description: fmt.Sprintf("resource %s capacity %d exceeded at %s", *candidate.ResourceID, resourceCapacity, candidate.Window),
			})
		}
	}

	if sctx.Availability != nil {
		if _, ok := sctx.Availability.ContainingSlot(candidate.TherapistID, candidate.Date, candidate.Window); !ok {
			conflicts = append(conflicts, models.Conflict{
				Type:        models.ConflictAvailabilityViolation,
				Severity:    models.SeverityBlocking,
				Description: fmt.Sprintf("therapist %s has no availability covering %s on %s", candidate.TherapistID, candidate.Window, candidate.Date.Format("2006-01-02")),
			})
		}
		if candidate.ResourceID != nil {
			if _, ok := sctx.Availability.ContainingSlot(*candidate.ResourceID, candidate.Date, candidate.Window); !ok {
				conflicts = append(conflicts, models.Conflict{
					Type:        models.ConflictAvailabilityViolation,
					Severity:    models.SeverityBlocking,
					Description: fmt.Sprintf("resource %s has no availability covering %s on %s", *candidate.ResourceID, candidate.Window, candidate.Date.Format("2006-01-02")),
				})
			}
		}
	}

	conflicts = append(conflicts, s.constraintConflicts(candidate, sctx.Constraints)...)
	return conflicts
}

// overlappingSessions returns committed or proposed sessions on the candidate's
// date whose windows intersect it. Sessions with unparseable windows violate a
// stored invariant: they are logged and excluded, never repaired.
func (s *ConflictService) overlappingSessions(candidate models.Session, existing []models.Session, sameOwner func(models.Session) bool) []models.Session {
	var overlaps []models.Session
	for _, session := range existing {
		if session.ID != "" && session.ID == candidate.ID {
			continue
		}
		if session.Status == models.SessionStatusCancelled {
			continue
		}
		if !sameDate(session.Date, candidate.Date) || !sameOwner(session) {
			continue
		}
		if err := session.Window.Validate(); err != nil {
			s.logger.Sugar().Warnw("excluding session with invalid window from detection",
				"session_id", session.ID, "error", err)
			continue
		}
		if session.Window.Overlaps(candidate.Window) {
			overlaps = append(overlaps, session)
		}
	}
	sort.Slice(overlaps, func(i, j int) bool { return overlaps[i].ID < overlaps[j].ID })
	return overlaps
}

func (s *ConflictService) slotCapacity(sctx SchedulingContext, ownerID string, candidate models.Session) int {
	if sctx.Availability == nil {
		return 1
	}
	if slot, ok := sctx.Availability.ContainingSlot(ownerID, candidate.Date, candidate.Window); ok {
		return slot.EffectiveCapacity()
	}
	return 1
}

func (s *ConflictService) constraintConflicts(candidate models.Session, constraints *dto.Constraints) []models.Conflict {
	if constraints == nil {
		return nil
	}
	var conflicts []models.Conflict
	if constraints.NotBefore != "" {
		if bound, err := models.ClockToMinutes(constraints.NotBefore); err == nil && candidate.Window.StartMinute() < bound {
			conflicts = append(conflicts, models.Conflict{
				Type:        models.ConflictConstraintViolation,
				Severity:    models.SeverityWarning,
				Description: fmt.Sprintf("session starts %s, before requested earliest time %s", candidate.Window.Start, constraints.NotBefore),
			})
		}
	}
	if constraints.NotAfter != "" {
		if bound, err := models.ClockToMinutes(constraints.NotAfter); err == nil && candidate.Window.EndMinute() > bound {
			conflicts = append(conflicts, models.Conflict{
				Type:        models.ConflictConstraintViolation,
				Severity:    models.SeverityWarning,
				Description: fmt.Sprintf("session ends %s, after requested latest time %s", candidate.Window.End, constraints.NotAfter),
			})
		}
	}
	return conflicts
}

// DetectBatch evaluates candidates against a shared context snapshot in
// submission order. A candidate free of blocking conflicts joins the working
// set, so batch-internal collisions resolve deterministically in favour of the
// earlier-indexed candidate. This tie-break is a default, not a contract.
func (s *ConflictService) DetectBatch(candidates []models.Session, sctx SchedulingContext, opts dto.BatchOptions) map[string][]models.Conflict {
	results := make(map[string][]models.Conflict, len(candidates))
	if len(candidates) == 0 {
		return results
	}
	if !opts.Parallel {
		s.detectFold(candidates, sctx, results, nil)
		return results
	}

	groups := partitionIndependent(candidates)
	maxWorkers := opts.MaxConcurrency
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)
	for _, group := range groups {
		wg.Add(1)
		go func(group []models.Session) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s.detectFold(group, sctx, results, &mu)
		}(group)
	}
	wg.Wait()
	return results
}

func (s *ConflictService) detectFold(candidates []models.Session, sctx SchedulingContext, results map[string][]models.Conflict, mu *sync.Mutex) {
	working := sctx.Existing
	for _, candidate := range candidates {
		scoped := sctx
		scoped.Existing = working
		conflicts := s.Detect(candidate, scoped)
		if mu != nil {
			mu.Lock()
		}
		results[candidate.ID] = conflicts
		if mu != nil {
			mu.Unlock()
		}
		if !models.HasBlocking(conflicts) {
			working = append(working[:len(working):len(working)], candidate)
		}
	}
}

// partitionIndependent groups candidates transitively linked by a shared
// therapist or resource; groups preserve submission order internally and can be
// evaluated concurrently without missing cross-candidate conflicts.
func partitionIndependent(candidates []models.Session) [][]models.Session {
	parent := make([]int, len(candidates))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	ownerIndex := make(map[string]int)
	link := func(key string, i int) {
		if key == "" {
			return
		}
		if first, ok := ownerIndex[key]; ok {
			union(first, i)
		} else {
			ownerIndex[key] = i
		}
	}
	for i, candidate := range candidates {
		link("t:"+candidate.TherapistID, i)
		if candidate.ResourceID != nil {
			link("r:"+*candidate.ResourceID, i)
		}
	}

	grouped := make(map[int][]models.Session)
	var order []int
	for i, candidate := range candidates {
		root := find(i)
		if _, seen := grouped[root]; !seen {
			order = append(order, root)
		}
		grouped[root] = append(grouped[root], candidate)
	}
	groups := make([][]models.Session, 0, len(order))
	for _, root := range order {
		groups = append(groups, grouped[root])
	}
	return groups
}

// ResolutionSuggestions proposes alternative placements for a blocked candidate,
// drawn from unused availability capacity and ranked by smallest displacement
// from the originally requested time.
func (s *ConflictService) ResolutionSuggestions(conflicts []models.Conflict, session models.Session, sctx SchedulingContext, horizonDays, limit int) []dto.Suggestion {
	if !models.HasBlocking(conflicts) || sctx.Availability == nil {
		return nil
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}
	if limit <= 0 {
		limit = 5
	}
	duration := int(session.Window.Duration().Minutes())
	if duration <= 0 {
		return nil
	}

	var suggestions []dto.Suggestion
	for offset := -horizonDays; offset <= horizonDays; offset++ {
		date := session.Date.AddDate(0, 0, offset)
		for _, slot := range sctx.Availability.SlotsFor(session.TherapistID, date) {
			for start := slot.Window.StartMinute(); start+duration <= slot.Window.EndMinute(); start += 15 {
				window := models.NewTimeWindow(start, start+duration)
				moved := session
				moved.Date = date
				moved.Window = window
				if models.HasBlocking(s.detect(moved, sctx)) {
					continue
				}
				displacement := offset*24*60 + (start - session.Window.StartMinute())
				if displacement < 0 {
					displacement = -displacement
				}
				suggestions = append(suggestions, dto.Suggestion{
					Date:                date,
					Window:              window,
					DisplacementMinutes: displacement,
				})
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].DisplacementMinutes < suggestions[j].DisplacementMinutes
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

func sessionIDs(sessions []models.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		if session.ID != "" {
			ids = append(ids, session.ID)
		}
	}
	return ids
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
