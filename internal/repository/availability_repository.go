package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// NULL validity bounds scan as the zero time, which the model treats as an
// unbounded slot.
const availabilityColumns = `id, owner_id, owner_type, weekday, start_time AS "window.start_time", end_time AS "window.end_time", capacity, COALESCE(valid_from, '0001-01-01T00:00:00Z'::timestamptz) AS valid_from, COALESCE(valid_until, '0001-01-01T00:00:00Z'::timestamptz) AS valid_until, created_at`

// AvailabilityRepository reads availability slots. The scheduling core never
// writes them; availability management lives outside this service.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListForOwners returns slots for the given owners whose validity range touches
// the requested date range.
func (r *AvailabilityRepository) ListForOwners(ctx context.Context, ownerIDs []string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM availability_slots
WHERE owner_id IN (?) AND (valid_from IS NULL OR valid_from <= ?) AND (valid_until IS NULL OR valid_until >= ?)
ORDER BY owner_id, weekday, start_time`, availabilityColumns), ownerIDs, to, from)
	if err != nil {
		return nil, fmt.Errorf("build availability query: %w", err)
	}
	query = r.db.Rebind(query)
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}
	return slots, nil
}
