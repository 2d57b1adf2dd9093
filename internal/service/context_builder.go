package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/carelane/therapy-scheduler-api/internal/dto"
	"github.com/carelane/therapy-scheduler-api/internal/models"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
)

// ContextBuilder materialises a SchedulingContext from stored sessions and
// availability when a detection request does not carry one inline.
type ContextBuilder struct {
	availability availabilityReader
	sessions     sessionReader
	logger       *zap.Logger
	horizonDays  int
}

// NewContextBuilder constructs the builder.
func NewContextBuilder(availability availabilityReader, sessions sessionReader, logger *zap.Logger, horizonDays int) *ContextBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if horizonDays <= 0 {
		horizonDays = 7
	}
	return &ContextBuilder{
		availability: availability,
		sessions:     sessions,
		logger:       logger,
		horizonDays:  horizonDays,
	}
}

// FromInput builds a context from an explicit request payload. No stores are
// consulted; the caller fully controls the evaluation snapshot.
func (b *ContextBuilder) FromInput(input *dto.ContextInput, constraints *dto.Constraints) SchedulingContext {
	sctx := SchedulingContext{Constraints: constraints}
	if input == nil {
		return sctx
	}
	sctx.Existing = make([]models.Session, 0, len(input.ExistingSessions))
	for _, in := range input.ExistingSessions {
		sctx.Existing = append(sctx.Existing, in.Session())
	}
	sctx.Availability = NewAvailabilityIndex(input.Availability, b.logger)
	return sctx
}

// Materialize builds a context from stored state covering every owner the
// candidates reference, widened by the suggestion horizon on both sides.
func (b *ContextBuilder) Materialize(ctx context.Context, candidates []models.Session, constraints *dto.Constraints) (SchedulingContext, error) {
	if len(candidates) == 0 {
		return SchedulingContext{Constraints: constraints}, nil
	}

	owners := make(map[string]struct{})
	minDate, maxDate := candidates[0].Date, candidates[0].Date
	for _, candidate := range candidates {
		owners[candidate.TherapistID] = struct{}{}
		if candidate.ResourceID != nil && *candidate.ResourceID != "" {
			owners[*candidate.ResourceID] = struct{}{}
		}
		if candidate.Date.Before(minDate) {
			minDate = candidate.Date
		}
		if candidate.Date.After(maxDate) {
			maxDate = candidate.Date
		}
	}
	ownerIDs := make([]string, 0, len(owners))
	for owner := range owners {
		ownerIDs = append(ownerIDs, owner)
	}
	sort.Strings(ownerIDs)

	from := minDate.AddDate(0, 0, -b.horizonDays)
	to := maxDate.AddDate(0, 0, b.horizonDays)

	slots, err := b.availability.ListForOwners(ctx, ownerIDs, from, to)
	if err != nil {
		return SchedulingContext{}, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load availability")
	}

	var existing []models.Session
	for _, owner := range ownerIDs {
		batch, err := b.sessions.List(ctx, models.SessionFilter{
			TherapistID: owner,
			Status:      []models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusProposed},
			DateFrom:    from,
			DateTo:      to,
		})
		if err != nil {
			return SchedulingContext{}, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load sessions")
		}
		existing = appendUniqueSessions(existing, batch)
	}

	return SchedulingContext{
		Existing:     existing,
		Availability: NewAvailabilityIndex(slots, b.logger),
		Constraints:  constraints,
	}, nil
}
