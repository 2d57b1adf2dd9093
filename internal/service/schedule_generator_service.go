package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/models"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
)

type availabilityReader interface {
	ListForOwners(ctx context.Context, ownerIDs []string, from, to time.Time) ([]models.AvailabilitySlot, error)
}

type sessionReader interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
}

type sessionCommitter interface {
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, sessions []models.Session) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// ScheduleGeneratorService expands a subscription's cadence into a conflict-free
// session calendar, resolving blocked candidates through detector suggestions
// and handing the accepted set to the rule engine.
type ScheduleGeneratorService struct {
	availability availabilityReader
	sessions     sessionReader
	committer    sessionCommitter
	tx           txProvider
	detector     *ConflictService
	rules        *RuleEngineService
	validator    *validator.Validate
	logger       *zap.Logger
	metrics      *MetricsService
	cfg          ScheduleGeneratorConfig
	store        *proposalStore
}

// ScheduleGeneratorConfig governs generator behaviour.
type ScheduleGeneratorConfig struct {
	ProposalTTL       time.Duration
	PlacementRetries  int
	SuggestionHorizon int
	FetchRetries      int
	FetchBackoff      time.Duration
}

// NewScheduleGeneratorService wires generator dependencies.
func NewScheduleGeneratorService(
	availability availabilityReader,
	sessions sessionReader,
	committer sessionCommitter,
	tx txProvider,
	detector *ConflictService,
	rules *RuleEngineService,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg ScheduleGeneratorConfig,
) *ScheduleGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.PlacementRetries <= 0 {
		cfg.PlacementRetries = 3
	}
	if cfg.SuggestionHorizon <= 0 {
		cfg.SuggestionHorizon = 7
	}
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = 3
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = 200 * time.Millisecond
	}
	return &ScheduleGeneratorService{
		availability: availability,
		sessions:     sessions,
		committer:    committer,
		tx:           tx,
		detector:     detector,
		rules:        rules,
		validator:    validate,
		logger:       logger,
		metrics:      metrics,
		cfg:          cfg,
		store:        newProposalStore(cfg.ProposalTTL),
	}
}

// Generate orchestrates cadence expansion, placement, and optimization. A
// request whose every candidate stays blocked still succeeds, returning an
// empty session list with the full unresolved set.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, req dto.SchedulingRequest) (*dto.GenerateScheduleResponse, error) {
	started := time.Now()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduling request")
	}
	start, end := req.DateRange()
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be after startDate")
	}
	if end.Sub(start) > 366*24*time.Hour {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range must not exceed one year")
	}

	sctx, err := s.materializeContext(ctx, req, start, end)
	if err != nil {
		return nil, err
	}

	candidates := s.expandCadence(req, start, end, sctx.Availability)

	accepted := make([]models.Session, 0, len(candidates))
	unresolved := make([]dto.UnresolvedCandidate, 0)
	var warnings []models.Conflict
	working := sctx.Existing

	for _, candidate := range candidates {
		scoped := sctx
		scoped.Existing = working
		placed, conflicts := s.place(candidate, scoped, start, end)
		if models.HasBlocking(conflicts) {
			unresolved = append(unresolved, dto.UnresolvedCandidate{
				Sequence:  candidate.Sequence,
				Date:      candidate.Date,
				Window:    candidate.Window,
				Conflicts: conflicts,
			})
			continue
		}
		warnings = append(warnings, conflicts...)
		accepted = append(accepted, placed)
		working = append(working, placed)
	}

	optimized := accepted
	var applied []models.RuleID
	if s.rules != nil && len(accepted) > 0 {
		optimized, applied, err = s.rules.Execute(ctx, accepted, sctx)
		if err != nil {
			s.logger.Sugar().Warnw("rule engine unavailable, returning unoptimized set", "error", err)
			optimized, applied = accepted, nil
		}
	}

	outcome := dto.OutcomeFullySatisfied
	switch {
	case len(optimized) == 0:
		outcome = dto.OutcomeUnsatisfied
	case len(unresolved) > 0:
		outcome = dto.OutcomePartiallySatisfied
	}

	proposal := scheduleProposal{
		ProposalID:  uuid.NewString(),
		Request:     req,
		Sessions:    optimized,
		Unresolved:  unresolved,
		Applied:     applied,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)
	s.metrics.ObserveGeneration(string(outcome), time.Since(started))

	return &dto.GenerateScheduleResponse{
		ProposalID:   proposal.ProposalID,
		Outcome:      outcome,
		Sessions:     optimized,
		Unresolved:   unresolved,
		AppliedRules: applied,
		Warnings:     warnings,
	}, nil
}

// PlaceOne runs the single-candidate path: detect, then walk suggestions until
// the candidate fits or the retry budget runs out. The bulk engine reuses it.
func (s *ScheduleGeneratorService) PlaceOne(candidate models.Session, sctx SchedulingContext) (models.Session, []models.Conflict) {
	return s.place(candidate, sctx, time.Time{}, time.Time{})
}

// place resolves a blocked candidate through suggestions. Suggestions landing
// outside [rangeStart, rangeEnd] are not acceptable placements for a cadence
// candidate; zero bounds disable the check.
func (s *ScheduleGeneratorService) place(candidate models.Session, sctx SchedulingContext, rangeStart, rangeEnd time.Time) (models.Session, []models.Conflict) {
	conflicts := s.detector.detect(candidate, sctx)
	if !models.HasBlocking(conflicts) {
		s.detector.record(conflicts)
		return candidate, conflicts
	}
	inRange := func(date time.Time) bool {
		if rangeStart.IsZero() && rangeEnd.IsZero() {
			return true
		}
		return !date.Before(rangeStart) && !date.After(rangeEnd)
	}
	current := candidate
	for attempt := 0; attempt < s.cfg.PlacementRetries; attempt++ {
		suggestions := s.detector.ResolutionSuggestions(conflicts, current, sctx, s.cfg.SuggestionHorizon, 5)
		moved := false
		for _, suggestion := range suggestions {
			if !inRange(suggestion.Date) {
				continue
			}
			current.Date = suggestion.Date
			current.Window = suggestion.Window
			moved = true
			break
		}
		if !moved {
			break
		}
		conflicts = s.detector.detect(current, sctx)
		if !models.HasBlocking(conflicts) {
			s.detector.record(conflicts)
			return current, conflicts
		}
	}
	// Report against the original slot so unresolved entries match the request.
	return candidate, s.detector.Detect(candidate, sctx)
}

// Commit persists a proposal's sessions. A final validation pass against fresh
// state catches placements invalidated since generation; those are rejected
// individually and the rest commit.
func (s *ScheduleGeneratorService) Commit(ctx context.Context, proposalID string) (*dto.CommitScheduleResponse, error) {
	if proposalID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposal id is required")
	}
	proposal, ok := s.store.Get(proposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if len(proposal.Sessions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "proposal has no sessions to commit")
	}
	if s.tx == nil || s.committer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "session store is not configured")
	}

	start, end := proposal.Request.DateRange()
	sctx, err := s.materializeContext(ctx, proposal.Request, start, end)
	if err != nil {
		return nil, err
	}

	commit := make([]models.Session, 0, len(proposal.Sessions))
	var rejected []models.Conflict
	working := sctx.Existing
	for _, session := range proposal.Sessions {
		scoped := sctx
		scoped.Existing = working
		conflicts := s.detector.Detect(session, scoped)
		if models.HasBlocking(conflicts) {
			rejected = append(rejected, conflicts...)
			continue
		}
		session.Status = models.SessionStatusScheduled
		commit = append(commit, session)
		working = append(working, session)
	}
	if len(commit) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "every proposed session conflicts with current calendar state")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	if err := s.committer.BulkCreateWithTx(ctx, tx, commit); err != nil {
		_ = tx.Rollback()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist sessions")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session transaction")
	}

	s.store.Delete(proposalID)
	ids := make([]string, 0, len(commit))
	for _, session := range commit {
		ids = append(ids, session.ID)
	}
	return &dto.CommitScheduleResponse{SessionIDs: ids, Rejected: rejected}, nil
}

// materializeContext snapshots availability and existing sessions for one
// generation run, retrying transient collaborator failures with backoff.
func (s *ScheduleGeneratorService) materializeContext(ctx context.Context, req dto.SchedulingRequest, start, end time.Time) (SchedulingContext, error) {
	owners := []string{req.TherapistID}
	if req.ResourceID != nil && *req.ResourceID != "" {
		owners = append(owners, *req.ResourceID)
	}

	var slots []models.AvailabilitySlot
	err := s.retryFetch(ctx, "availability", func() error {
		var fetchErr error
		slots, fetchErr = s.availability.ListForOwners(ctx, owners, start, end)
		return fetchErr
	})
	if err != nil {
		return SchedulingContext{}, err
	}

	activeStatuses := []models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusProposed}
	dateFrom := start.AddDate(0, 0, -s.cfg.SuggestionHorizon)
	dateTo := end.AddDate(0, 0, s.cfg.SuggestionHorizon)

	var existing []models.Session
	filters := []models.SessionFilter{{
		TherapistID: req.TherapistID,
		Status:      activeStatuses,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
	}}
	if req.ResourceID != nil && *req.ResourceID != "" {
		filters = append(filters, models.SessionFilter{
			ResourceID: *req.ResourceID,
			Status:     activeStatuses,
			DateFrom:   dateFrom,
			DateTo:     dateTo,
		})
	}
	for _, filter := range filters {
		var batch []models.Session
		fetchErr := s.retryFetch(ctx, "sessions", func() error {
			var listErr error
			batch, listErr = s.sessions.List(ctx, filter)
			return listErr
		})
		if fetchErr != nil {
			return SchedulingContext{}, fetchErr
		}
		existing = appendUniqueSessions(existing, batch)
	}

	sctx := SchedulingContext{
		Existing:     existing,
		Availability: NewAvailabilityIndex(slots, s.logger),
	}
	if req.NotBefore != "" || req.NotAfter != "" {
		sctx.Constraints = &dto.Constraints{NotBefore: req.NotBefore, NotAfter: req.NotAfter}
	}
	return sctx, nil
}

func (s *ScheduleGeneratorService) retryFetch(ctx context.Context, what string, fetch func() error) error {
	var err error
	backoff := s.cfg.FetchBackoff
	for attempt := 1; attempt <= s.cfg.FetchRetries; attempt++ {
		if err = fetch(); err == nil {
			return nil
		}
		s.logger.Sugar().Warnw("collaborator fetch failed", "what", what, "attempt", attempt, "error", err)
		if attempt == s.cfg.FetchRetries {
			break
		}
		select {
		case <-ctx.Done():
			return appErrors.Wrap(ctx.Err(), appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "context cancelled while fetching "+what)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, fmt.Sprintf("failed to fetch %s after %d attempts", what, s.cfg.FetchRetries))
}

// expandCadence turns sessions-per-week over a date range into concrete dated
// candidates. Scheduling days come from the request's preferred days, falling
// back to the therapist's available weekdays.
func (s *ScheduleGeneratorService) expandCadence(req dto.SchedulingRequest, start, end time.Time, index *AvailabilityIndex) []models.Session {
	days := normalizeWeekdays(req.PreferredDays)
	if len(days) == 0 && index != nil {
		days = index.Weekdays(req.TherapistID)
	}
	if len(days) == 0 {
		days = []int{1, 2, 3, 4, 5}
	}
	if len(days) > req.SessionsPerWeek {
		days = days[:req.SessionsPerWeek]
	}

	var candidates []models.Session
	for weekStart := start; !weekStart.After(end); weekStart = weekStart.AddDate(0, 0, 7) {
		placedThisWeek := 0
		for _, day := range days {
			if placedThisWeek >= req.SessionsPerWeek {
				break
			}
			date := dateForWeekday(weekStart, day)
			if date.Before(start) || date.After(end) {
				continue
			}
			candidates = append(candidates, models.Session{
				ID:             uuid.NewString(),
				SubscriptionID: req.SubscriptionID,
				TherapistID:    req.TherapistID,
				ResourceID:     req.ResourceID,
				Date:           date,
				Window:         s.candidateWindow(req, date, index),
				Status:         models.SessionStatusProposed,
			})
			placedThisWeek++
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].Date.Equal(candidates[j].Date) {
			return candidates[i].Date.Before(candidates[j].Date)
		}
		return candidates[i].Window.StartMinute() < candidates[j].Window.StartMinute()
	})
	for i := range candidates {
		candidates[i].Sequence = i + 1
	}
	return candidates
}

func (s *ScheduleGeneratorService) candidateWindow(req dto.SchedulingRequest, date time.Time, index *AvailabilityIndex) models.TimeWindow {
	startMinute := 9 * 60
	if req.PreferredStart != "" {
		if parsed, err := models.ClockToMinutes(req.PreferredStart); err == nil {
			startMinute = parsed
		}
	} else if index != nil {
		if slots := index.SlotsFor(req.TherapistID, date); len(slots) > 0 {
			startMinute = slots[0].Window.StartMinute()
		}
	}
	return models.NewTimeWindow(startMinute, startMinute+req.DurationMinutes)
}

func normalizeWeekdays(days []int) []int {
	unique := make(map[int]struct{})
	for _, day := range days {
		if day < 1 || day > 7 {
			continue
		}
		unique[day] = struct{}{}
	}
	result := make([]int, 0, len(unique))
	for day := range unique {
		result = append(result, day)
	}
	sort.Ints(result)
	return result
}

// dateForWeekday returns the date of the given ISO weekday within the week
// beginning at weekStart.
func dateForWeekday(weekStart time.Time, weekday int) time.Time {
	offset := weekday - models.ISOWeekday(weekStart)
	if offset < 0 {
		offset += 7
	}
	return weekStart.AddDate(0, 0, offset)
}

func appendUniqueSessions(existing, batch []models.Session) []models.Session {
	seen := make(map[string]struct{}, len(existing))
	for _, session := range existing {
		seen[session.ID] = struct{}{}
	}
	for _, session := range batch {
		if _, ok := seen[session.ID]; ok {
			continue
		}
		existing = append(existing, session)
		seen[session.ID] = struct{}{}
	}
	return existing
}

type scheduleProposal struct {
	ProposalID  string
	Request     dto.SchedulingRequest
	Sessions    []models.Session
	Unresolved  []dto.UnresolvedCandidate
	Applied     []models.RuleID
	RequestedAt time.Time
}

// proposalStore keeps generated proposals in memory until they are committed
// or expire.
type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]scheduleProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]scheduleProposal),
	}
}

func (s *proposalStore) Save(proposal scheduleProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (scheduleProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return scheduleProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return scheduleProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
