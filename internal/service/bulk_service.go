package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/models"
	"github.com/carelane/therapy-scheduler-api/internal/repository"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
	"github.com/carelane/therapy-scheduler-api/pkg/jobs"
)

const bulkJobType = "bulk_rescheduling"

type bulkSessionStore interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Session, error)
	UpdatePlacement(ctx context.Context, id string, placement models.SessionPlacement) error
}

type bulkOperationStore interface {
	Create(ctx context.Context, op *models.BulkOperation) error
	GetByID(ctx context.Context, id string) (*models.BulkOperation, error)
	Update(ctx context.Context, id string, params repository.UpdateBulkOperationParams) error
	TransitionStatus(ctx context.Context, id string, from, to models.BulkOperationStatus) (bool, error)
	ListUnfinished(ctx context.Context, limit int) ([]models.BulkOperation, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// BulkServiceConfig tunes worker behaviour per operation.
type BulkServiceConfig struct {
	MaxConcurrency    int
	RetryBudget       int
	SuggestionHorizon int
	FetchRetries      int
	FetchBackoff      time.Duration
}

// BulkService executes structural changes over committed sessions: freezes,
// therapist reassignments, and mass shifts. Operations run asynchronously on
// the job queue; every session change lands in an append-only outcome log so
// the whole operation can be rolled back.
type BulkService struct {
	ops          bulkOperationStore
	sessions     bulkSessionStore
	availability availabilityReader
	detector     *ConflictService
	tracker      *OperationTracker
	validator    *validator.Validate
	logger       *zap.Logger
	metrics      *MetricsService
	cfg          BulkServiceConfig

	mu    sync.Mutex
	queue jobEnqueuer
}

// NewBulkService wires the bulk rescheduling engine.
func NewBulkService(
	ops bulkOperationStore,
	sessions bulkSessionStore,
	availability availabilityReader,
	detector *ConflictService,
	tracker *OperationTracker,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg BulkServiceConfig,
) *BulkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 2
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
	return &BulkService{
		ops:          ops,
		sessions:     sessions,
		availability: availability,
		detector:     detector,
		tracker:      tracker,
		validator:    validate,
		logger:       logger,
		metrics:      metrics,
		cfg:          cfg,
	}
}

// AttachQueue binds the job queue after construction; the queue's handler is
// ProcessJob, so the two reference each other.
func (s *BulkService) AttachQueue(queue jobEnqueuer) {
	s.mu.Lock()
	s.queue = queue
	s.mu.Unlock()
}

// Execute validates a bulk request, resolves the affected session set, persists
// a PENDING operation, and enqueues it. The resolved ids are frozen into the
// operation's params so a restart reprocesses exactly the same set.
func (s *BulkService) Execute(ctx context.Context, req dto.BulkReschedulingRequest) (*dto.BulkOperationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk rescheduling request")
	}
	params, err := buildOperationParams(req)
	if err != nil {
		return nil, err
	}

	affected, err := s.resolveAffected(ctx, req, params)
	if err != nil {
		return nil, err
	}
	if len(affected) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no committed sessions match the request")
	}
	params.SessionIDs = make([]string, 0, len(affected))
	for _, session := range affected {
		params.SessionIDs = append(params.SessionIDs, session.ID)
	}

	op := &models.BulkOperation{
		Type:   req.Type,
		Status: models.BulkStatusPending,
		Params: *params,
	}
	if err := s.ops.Create(ctx, op); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create bulk operation")
	}
	s.tracker.Begin(ctx, op.ID, len(params.SessionIDs))

	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "bulk operation queue is not running")
	}
	if err := queue.Enqueue(jobs.Job{ID: op.ID, Type: bulkJobType, Payload: op.ID}); err != nil {
		message := "failed to enqueue operation"
		if updateErr := s.ops.Update(ctx, op.ID, repository.UpdateBulkOperationParams{
			Status:       statusPtr(models.BulkStatusFailed),
			ErrorMessage: &message,
		}); updateErr != nil {
			s.logger.Sugar().Errorw("failed to mark unqueued operation", "operation_id", op.ID, "error", updateErr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, message)
	}

	return &dto.BulkOperationResult{OperationID: op.ID, Status: models.BulkStatusPending}, nil
}

// ProcessJob is the queue handler. Errors returned before the operation enters
// RUNNING trigger queue-level retries; once RUNNING, failures are recorded on
// the operation itself.
func (s *BulkService) ProcessJob(ctx context.Context, job jobs.Job) error {
	operationID, ok := job.Payload.(string)
	if !ok || operationID == "" {
		s.logger.Sugar().Errorw("bulk job carries no operation id", "job_id", job.ID)
		return nil
	}

	op, err := s.ops.GetByID(ctx, operationID)
	if err != nil {
		return fmt.Errorf("load operation %s: %w", operationID, err)
	}
	if op.Status != models.BulkStatusPending {
		return nil
	}
	transitioned, err := s.ops.TransitionStatus(ctx, operationID, models.BulkStatusPending, models.BulkStatusRunning)
	if err != nil {
		return fmt.Errorf("start operation %s: %w", operationID, err)
	}
	if !transitioned {
		return nil
	}
	now := time.Now().UTC()
	if err := s.ops.Update(ctx, operationID, repository.UpdateBulkOperationParams{StartedAt: &now}); err != nil {
		s.logger.Sugar().Warnw("failed to stamp operation start", "operation_id", operationID, "error", err)
	}

	s.run(ctx, op)
	return nil
}

// run drives one RUNNING operation to a terminal state.
func (s *BulkService) run(ctx context.Context, op *models.BulkOperation) {
	var affected []models.Session
	if err := s.retryFetch(ctx, "affected sessions", func() error {
		var findErr error
		affected, findErr = s.sessions.FindByIDs(ctx, op.Params.SessionIDs)
		return findErr
	}); err != nil {
		s.fail(ctx, op.ID, fmt.Sprintf("failed to load affected sessions: %v", err))
		return
	}
	sctx, err := s.materializeBulkContext(ctx, op, affected)
	if err != nil {
		s.fail(ctx, op.ID, fmt.Sprintf("failed to load scheduling context: %v", err))
		return
	}

	state := &bulkRunState{
		working:  sctx.Existing,
		outcomes: make(models.OutcomeLog, 0, len(affected)),
	}

	concurrency := s.cfg.MaxConcurrency
	if op.Params.MaxConcurrency > 0 && op.Params.MaxConcurrency < concurrency {
		concurrency = op.Params.MaxConcurrency
	}

	groups := groupByTherapist(affected)
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(group []models.Session) {
			defer wg.Done()
			defer func() { <-semaphore }()
			for _, session := range group {
				if s.tracker.CancelRequested(op.ID) {
					return
				}
				s.processSession(ctx, op, session, sctx, state)
			}
		}(group)
	}
	wg.Wait()

	s.finalize(ctx, op.ID, state, len(affected))
}

type bulkRunState struct {
	mu       sync.Mutex
	working  []models.Session
	outcomes models.OutcomeLog
}

// processSession attempts one placement change, retrying through detector
// suggestions before recording failure. The working set and the persisted
// outcome log advance together under the state lock.
func (s *BulkService) processSession(ctx context.Context, op *models.BulkOperation, session models.Session, sctx SchedulingContext, state *bulkRunState) {
	target := targetPlacement(op, session)
	outcome := models.SessionOutcome{SessionID: session.ID, RecordedAt: time.Now().UTC()}
	previous := session.Placement()
	outcome.Previous = &previous

	candidate := session
	candidate.TherapistID = target.TherapistID
	candidate.ResourceID = target.ResourceID
	candidate.Date = target.Date
	candidate.Window = target.Window

	state.mu.Lock()
	scoped := sctx
	scoped.Existing = state.working
	conflicts := s.detector.detect(candidate, scoped)
	for attempt := 0; models.HasBlocking(conflicts) && attempt < s.cfg.RetryBudget; attempt++ {
		suggestions := s.detector.ResolutionSuggestions(conflicts, candidate, scoped, s.cfg.SuggestionHorizon, 1)
		if len(suggestions) == 0 {
			break
		}
		candidate.Date = suggestions[0].Date
		candidate.Window = suggestions[0].Window
		conflicts = s.detector.detect(candidate, scoped)
	}
	blocked := models.HasBlocking(conflicts)
	if !blocked {
		// Reserve the slot before releasing the lock so parallel groups
		// cannot claim it concurrently.
		state.working = replaceSession(state.working, candidate)
	}
	state.mu.Unlock()

	if blocked {
		s.detector.record(conflicts)
		outcome.Success = false
		outcome.Error = describeConflicts(conflicts)
	} else {
		applied := candidate.Placement()
		if err := s.sessions.UpdatePlacement(ctx, session.ID, applied); err != nil {
			outcome.Success = false
			outcome.Error = fmt.Sprintf("persist placement: %v", err)
			state.mu.Lock()
			state.working = replaceSession(state.working, session)
			state.mu.Unlock()
		} else {
			outcome.Success = true
			outcome.Applied = &applied
		}
	}

	// Appending and persisting happen under the same lock so a snapshot from
	// one group worker can never overwrite a longer log written by another.
	state.mu.Lock()
	state.outcomes = append(state.outcomes, outcome)
	log := append(models.OutcomeLog(nil), state.outcomes...)
	progress := len(state.outcomes) * 100 / len(op.Params.SessionIDs)
	if err := s.ops.Update(ctx, op.ID, repository.UpdateBulkOperationParams{
		Outcomes: &log,
		Progress: &progress,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to persist outcome log", "operation_id", op.ID, "error", err)
	}
	state.mu.Unlock()

	s.tracker.Record(ctx, op.ID, outcome.Success)
	s.metrics.RecordBulkSession(outcome.Success)
}

func (s *BulkService) finalize(ctx context.Context, operationID string, state *bulkRunState, total int) {
	now := time.Now().UTC()
	update := repository.UpdateBulkOperationParams{Outcomes: &state.outcomes}

	if s.tracker.CancelRequested(operationID) && len(state.outcomes) < total {
		update.Status = statusPtr(models.BulkStatusCancelled)
		update.CancelledAt = &now
	} else {
		update.Status = statusPtr(models.BulkStatusCompleted)
		update.FinishedAt = &now
		progress := 100
		update.Progress = &progress
	}
	if err := s.ops.Update(ctx, operationID, update); err != nil {
		s.logger.Sugar().Errorw("failed to finalize operation", "operation_id", operationID, "error", err)
	}
	s.tracker.Finish(ctx, operationID)
}

func (s *BulkService) fail(ctx context.Context, operationID, message string) {
	now := time.Now().UTC()
	if err := s.ops.Update(ctx, operationID, repository.UpdateBulkOperationParams{
		Status:       statusPtr(models.BulkStatusFailed),
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Sugar().Errorw("failed to mark operation failed", "operation_id", operationID, "error", err)
	}
	s.tracker.Finish(ctx, operationID)
}

// Cancel requests cooperative cancellation. A PENDING operation cancels
// immediately; a RUNNING one stops between sessions, keeping changes already
// applied. Terminal operations refuse.
func (s *BulkService) Cancel(ctx context.Context, operationID string) (*dto.BulkOperationResult, error) {
	op, err := s.getOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	switch op.Status {
	case models.BulkStatusPending:
		transitioned, err := s.ops.TransitionStatus(ctx, operationID, models.BulkStatusPending, models.BulkStatusCancelled)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel operation")
		}
		if !transitioned {
			return nil, appErrors.Clone(appErrors.ErrConflict, "operation state changed concurrently, retry")
		}
		now := time.Now().UTC()
		if err := s.ops.Update(ctx, operationID, repository.UpdateBulkOperationParams{CancelledAt: &now}); err != nil {
			s.logger.Sugar().Warnw("failed to stamp cancellation", "operation_id", operationID, "error", err)
		}
		s.tracker.RequestCancel(operationID)
		s.tracker.Finish(ctx, operationID)
		return &dto.BulkOperationResult{OperationID: operationID, Status: models.BulkStatusCancelled}, nil
	case models.BulkStatusRunning:
		s.tracker.RequestCancel(operationID)
		return &dto.BulkOperationResult{OperationID: operationID, Status: models.BulkStatusRunning}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrOperationTerminal, fmt.Sprintf("operation is %s and cannot be cancelled", op.Status))
	}
}

// Rollback replays the outcome log in reverse, restoring each successfully
// changed session to its prior placement. Sessions modified since the
// operation ran are reported as conflicts and left untouched.
func (s *BulkService) Rollback(ctx context.Context, operationID string) (*dto.RollbackResponse, error) {
	op, err := s.getOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if !op.Status.RollbackEligible() {
		if op.Status.Terminal() {
			return nil, appErrors.Clone(appErrors.ErrOperationTerminal, fmt.Sprintf("operation is %s and cannot be rolled back", op.Status))
		}
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "operation is still in progress")
	}
	transitioned, err := s.ops.TransitionStatus(ctx, operationID, op.Status, models.BulkStatusRolledBack)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin rollback")
	}
	if !transitioned {
		return nil, appErrors.Clone(appErrors.ErrConflict, "operation state changed concurrently, retry")
	}

	restored := make([]string, 0, len(op.Outcomes))
	var conflicts []dto.RollbackConflict
	for i := len(op.Outcomes) - 1; i >= 0; i-- {
		entry := op.Outcomes[i]
		if !entry.Success || entry.Previous == nil || entry.Applied == nil {
			continue
		}
		current, err := s.sessions.FindByID(ctx, entry.SessionID)
		if err != nil {
			conflicts = append(conflicts, dto.RollbackConflict{SessionID: entry.SessionID, Reason: fmt.Sprintf("load session: %v", err)})
			continue
		}
		if !current.Placement().Equal(*entry.Applied) {
			conflicts = append(conflicts, dto.RollbackConflict{SessionID: entry.SessionID, Reason: "session modified after operation"})
			continue
		}
		if err := s.sessions.UpdatePlacement(ctx, entry.SessionID, *entry.Previous); err != nil {
			conflicts = append(conflicts, dto.RollbackConflict{SessionID: entry.SessionID, Reason: fmt.Sprintf("restore placement: %v", err)})
			continue
		}
		restored = append(restored, entry.SessionID)
	}

	now := time.Now().UTC()
	if err := s.ops.Update(ctx, operationID, repository.UpdateBulkOperationParams{RolledBackAt: &now}); err != nil {
		s.logger.Sugar().Warnw("failed to stamp rollback", "operation_id", operationID, "error", err)
	}

	return &dto.RollbackResponse{
		OperationID: operationID,
		Status:      models.BulkStatusRolledBack,
		Restored:    restored,
		Conflicts:   conflicts,
	}, nil
}

// Status combines the stored operation row with live tracker progress. For
// operations no longer tracked, progress is reconstructed from the outcome log.
func (s *BulkService) Status(ctx context.Context, operationID string) (*dto.OperationStatusResponse, error) {
	op, err := s.getOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	progress, ok := s.tracker.Snapshot(ctx, operationID)
	if !ok {
		progress = progressFromLog(op)
	}
	return &dto.OperationStatusResponse{Operation: *op, Progress: progress}, nil
}

// Recover handles operations left unfinished by a previous process: PENDING
// ones are re-enqueued, RUNNING ones are marked failed since their in-memory
// state is gone. Called once at startup.
func (s *BulkService) Recover(ctx context.Context) error {
	unfinished, err := s.ops.ListUnfinished(ctx, 100)
	if err != nil {
		return fmt.Errorf("list unfinished operations: %w", err)
	}
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()

	for _, op := range unfinished {
		switch op.Status {
		case models.BulkStatusPending:
			if queue == nil {
				continue
			}
			s.tracker.Begin(ctx, op.ID, len(op.Params.SessionIDs))
			if err := queue.Enqueue(jobs.Job{ID: op.ID, Type: bulkJobType, Payload: op.ID}); err != nil {
				s.logger.Sugar().Errorw("failed to re-enqueue operation", "operation_id", op.ID, "error", err)
			}
		case models.BulkStatusRunning:
			s.fail(ctx, op.ID, "interrupted by process restart")
		}
	}
	return nil
}

func (s *BulkService) getOperation(ctx context.Context, operationID string) (*models.BulkOperation, error) {
	if operationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "operation id is required")
	}
	op, err := s.ops.GetByID(ctx, operationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulk operation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bulk operation")
	}
	return op, nil
}

// resolveAffected selects the committed sessions an operation will touch. For
// FREEZE only sessions dated on or after the freeze point qualify.
func (s *BulkService) resolveAffected(ctx context.Context, req dto.BulkReschedulingRequest, params *models.BulkOperationParams) ([]models.Session, error) {
	var (
		sessions []models.Session
		err      error
	)
	switch {
	case req.SubscriptionID != "":
		filter := models.SessionFilter{
			SubscriptionID: req.SubscriptionID,
			Status:         []models.SessionStatus{models.SessionStatusScheduled},
		}
		if req.Type == models.BulkOperationFreeze && params.FreezeFrom != nil {
			filter.DateFrom = *params.FreezeFrom
		}
		sessions, err = s.sessions.List(ctx, filter)
	case len(req.SessionIDs) > 0:
		sessions, err = s.sessions.FindByIDs(ctx, req.SessionIDs)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "either subscriptionId or sessionIds is required")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to resolve affected sessions")
	}

	eligible := sessions[:0:0]
	for _, session := range sessions {
		if session.Status != models.SessionStatusScheduled {
			continue
		}
		if req.Type == models.BulkOperationFreeze && params.FreezeFrom != nil && session.Date.Before(*params.FreezeFrom) {
			continue
		}
		eligible = append(eligible, session)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].Date.Equal(eligible[j].Date) {
			return eligible[i].Date.Before(eligible[j].Date)
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible, nil
}

// materializeBulkContext loads availability and surrounding sessions for every
// owner an operation touches, including a REASSIGN's target therapist.
func (s *BulkService) materializeBulkContext(ctx context.Context, op *models.BulkOperation, affected []models.Session) (SchedulingContext, error) {
	if len(affected) == 0 {
		return SchedulingContext{}, nil
	}
	owners := make(map[string]struct{})
	minDate, maxDate := affected[0].Date, affected[0].Date
	for _, session := range affected {
		owners[session.TherapistID] = struct{}{}
		if session.ResourceID != nil {
			owners[*session.ResourceID] = struct{}{}
		}
		if session.Date.Before(minDate) {
			minDate = session.Date
		}
		if session.Date.After(maxDate) {
			maxDate = session.Date
		}
	}
	if op.Params.NewTherapistID != "" {
		owners[op.Params.NewTherapistID] = struct{}{}
	}

	// Widen the span to cover the shift itself plus the suggestion horizon.
	shift := op.Params.ShiftDays
	if op.Params.FreezeDays > shift {
		shift = op.Params.FreezeDays
	}
	from := minDate.AddDate(0, 0, -s.cfg.SuggestionHorizon)
	to := maxDate.AddDate(0, 0, shift+s.cfg.SuggestionHorizon)

	ownerIDs := make([]string, 0, len(owners))
	for owner := range owners {
		ownerIDs = append(ownerIDs, owner)
	}
	sort.Strings(ownerIDs)

	var slots []models.AvailabilitySlot
	if err := s.retryFetch(ctx, "availability", func() error {
		var listErr error
		slots, listErr = s.availability.ListForOwners(ctx, ownerIDs, from, to)
		return listErr
	}); err != nil {
		return SchedulingContext{}, err
	}

	var existing []models.Session
	for _, owner := range ownerIDs {
		var batch []models.Session
		if err := s.retryFetch(ctx, "sessions for "+owner, func() error {
			var listErr error
			batch, listErr = s.sessions.List(ctx, models.SessionFilter{
				TherapistID: owner,
				Status:      []models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusProposed},
				DateFrom:    from,
				DateTo:      to,
			})
			return listErr
		}); err != nil {
			return SchedulingContext{}, err
		}
		existing = appendUniqueSessions(existing, batch)
	}

	return SchedulingContext{
		Existing:     existing,
		Availability: NewAvailabilityIndex(slots, s.logger),
	}, nil
}

func (s *BulkService) retryFetch(ctx context.Context, what string, fetch func() error) error {
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

// targetPlacement computes where a session should land under the operation.
func targetPlacement(op *models.BulkOperation, session models.Session) models.SessionPlacement {
	placement := session.Placement()
	switch op.Type {
	case models.BulkOperationFreeze:
		placement.Date = session.Date.AddDate(0, 0, op.Params.FreezeDays)
	case models.BulkOperationReassign:
		placement.TherapistID = op.Params.NewTherapistID
	case models.BulkOperationMassShift:
		placement.Date = session.Date.AddDate(0, 0, op.Params.ShiftDays)
	}
	return placement
}

func buildOperationParams(req dto.BulkReschedulingRequest) (*models.BulkOperationParams, error) {
	params := &models.BulkOperationParams{
		SubscriptionID: req.SubscriptionID,
		NewTherapistID: req.NewTherapistID,
		ShiftDays:      req.ShiftDays,
		FreezeDays:     req.FreezeDays,
		MaxConcurrency: req.MaxConcurrency,
	}
	if req.SubscriptionID == "" && len(req.SessionIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "either subscriptionId or sessionIds is required")
	}
	if req.SubscriptionID != "" && len(req.SessionIDs) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subscriptionId and sessionIds are mutually exclusive")
	}
	switch req.Type {
	case models.BulkOperationFreeze:
		if req.FreezeFrom == "" || req.FreezeDays <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "FREEZE requires freezeFrom and a positive freezeDays")
		}
		from, err := time.Parse("2006-01-02", req.FreezeFrom)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "freezeFrom must be a valid date")
		}
		from = from.UTC()
		params.FreezeFrom = &from
	case models.BulkOperationReassign:
		if req.NewTherapistID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "REASSIGN requires newTherapistId")
		}
	case models.BulkOperationMassShift:
		if req.ShiftDays == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "MASS_SHIFT requires a non-zero shiftDays")
		}
	}
	return params, nil
}

func groupByTherapist(sessions []models.Session) [][]models.Session {
	byTherapist := make(map[string][]models.Session)
	for _, session := range sessions {
		byTherapist[session.TherapistID] = append(byTherapist[session.TherapistID], session)
	}
	keys := make([]string, 0, len(byTherapist))
	for key := range byTherapist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	groups := make([][]models.Session, 0, len(keys))
	for _, key := range keys {
		groups = append(groups, byTherapist[key])
	}
	return groups
}

func replaceSession(sessions []models.Session, updated models.Session) []models.Session {
	for i := range sessions {
		if sessions[i].ID == updated.ID {
			sessions[i] = updated
			return sessions
		}
	}
	return append(sessions, updated)
}

func describeConflicts(conflicts []models.Conflict) string {
	parts := make([]string, 0, len(conflicts))
	for _, conflict := range conflicts {
		if conflict.Blocking() {
			parts = append(parts, fmt.Sprintf("%s: %s", conflict.Type, conflict.Description))
		}
	}
	return strings.Join(parts, "; ")
}

func progressFromLog(op *models.BulkOperation) dto.OperationProgress {
	progress := dto.OperationProgress{
		Processed: len(op.Outcomes),
		Total:     len(op.Params.SessionIDs),
		UpdatedAt: op.CreatedAt,
	}
	for _, entry := range op.Outcomes {
		if entry.Success {
			progress.Succeeded++
		} else {
			progress.Failed++
		}
		if entry.RecordedAt.After(progress.UpdatedAt) {
			progress.UpdatedAt = entry.RecordedAt
		}
	}
	if op.FinishedAt != nil && op.FinishedAt.After(progress.UpdatedAt) {
		progress.UpdatedAt = *op.FinishedAt
	}
	return progress
}

func statusPtr(status models.BulkOperationStatus) *models.BulkOperationStatus {
	return &status
}
