package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/carelane/therapy-scheduler-api/internal/models"
)

// RuleRepository reads optimization rule configuration. Rule order is data; the
// implementations behind each RuleID are compiled in.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListActive returns active rules in priority order.
func (r *RuleRepository) ListActive(ctx context.Context) ([]models.OptimizationRule, error) {
	const query = `SELECT id, rule_id, priority, active, created_at, updated_at
FROM optimization_rules WHERE active = TRUE ORDER BY priority ASC`
	var rules []models.OptimizationRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return rules, nil
}
