package service

import (
	"context"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/carelane/therapy-scheduler-api/internal/models"
	appErrors "github.com/carelane/therapy-scheduler-api/pkg/errors"
)

type ruleConfigReader interface {
	ListActive(ctx context.Context) ([]models.OptimizationRule, error)
}

type ruleCounters struct {
	applied   atomic.Uint64
	discarded atomic.Uint64
}

// RuleEngineService applies ranked soft-preference rules to a session set. A
// proposal that raises the blocking-conflict count is discarded wholesale; rules
// may only improve or hold constant the number of blocking conflicts.
type RuleEngineService struct {
	rules    ruleConfigReader
	detector *ConflictService
	registry map[models.RuleID]OptimizationRule
	counters map[models.RuleID]*ruleCounters
	logger   *zap.Logger
	metrics  *MetricsService
}

// NewRuleEngineService wires the engine with the compiled-in rule registry.
func NewRuleEngineService(rules ruleConfigReader, detector *ConflictService, metrics *MetricsService, logger *zap.Logger) *RuleEngineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := ruleRegistry()
	counters := make(map[models.RuleID]*ruleCounters, len(registry))
	for id := range registry {
		counters[id] = &ruleCounters{}
	}
	return &RuleEngineService{
		rules:    rules,
		detector: detector,
		registry: registry,
		counters: counters,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute runs the configured rules in priority order over a copy of the
// session set and returns the optimized set plus the ids of applied rules.
func (s *RuleEngineService) Execute(ctx context.Context, sessions []models.Session, sctx SchedulingContext) ([]models.Session, []models.RuleID, error) {
	optimized := make([]models.Session, len(sessions))
	copy(optimized, sessions)
	if len(optimized) == 0 {
		return optimized, nil, nil
	}

	ordered, err := s.orderedRules(ctx)
	if err != nil {
		return nil, nil, err
	}

	applied := make([]models.RuleID, 0, len(ordered))
	for _, rule := range ordered {
		changes := rule.Apply(optimized, sctx)
		if len(changes) == 0 {
			continue
		}
		candidate := applyChanges(optimized, changes)
		before := s.blockingCount(optimized, sctx)
		after := s.blockingCount(candidate, sctx)
		if after > before {
			s.counters[rule.ID()].discarded.Add(1)
			s.metrics.RecordRule(rule.ID(), false)
			s.logger.Sugar().Debugw("discarded rule proposal",
				"rule", rule.ID(), "blocking_before", before, "blocking_after", after)
			continue
		}
		optimized = candidate
		applied = append(applied, rule.ID())
		s.counters[rule.ID()].applied.Add(1)
		s.metrics.RecordRule(rule.ID(), true)
	}
	return optimized, applied, nil
}

func (s *RuleEngineService) orderedRules(ctx context.Context) ([]OptimizationRule, error) {
	configured, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load optimization rules")
	}
	ordered := make([]OptimizationRule, 0, len(configured))
	for _, row := range configured {
		impl, ok := s.registry[row.RuleID]
		if !ok {
			s.logger.Sugar().Warnw("skipping unknown rule id", "rule_id", row.RuleID)
			continue
		}
		ordered = append(ordered, impl)
	}
	return ordered, nil
}

// blockingCount evaluates the whole set: each session is checked against the
// external context plus its peers in the set.
func (s *RuleEngineService) blockingCount(sessions []models.Session, sctx SchedulingContext) int {
	total := 0
	for i, session := range sessions {
		peers := make([]models.Session, 0, len(sctx.Existing)+len(sessions)-1)
		peers = append(peers, sctx.Existing...)
		peers = append(peers, sessions[:i]...)
		peers = append(peers, sessions[i+1:]...)
		scoped := sctx
		scoped.Existing = peers
		total += models.CountBlocking(s.detector.detect(session, scoped))
	}
	return total
}

func applyChanges(sessions []models.Session, changes []PlacementChange) []models.Session {
	next := make([]models.Session, len(sessions))
	copy(next, sessions)
	for _, change := range changes {
		for i := range next {
			if next[i].ID == change.SessionID {
				next[i].Date = change.Date
				next[i].Window = change.Window
				break
			}
		}
	}
	return next
}

// Statistics reports applied/discarded counters per registered rule.
func (s *RuleEngineService) Statistics() []models.RuleStatistics {
	stats := make([]models.RuleStatistics, 0, len(s.counters))
	for id, counter := range s.counters {
		stats = append(stats, models.RuleStatistics{
			RuleID:    id,
			Applied:   counter.applied.Load(),
			Discarded: counter.discarded.Load(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].RuleID < stats[j].RuleID })
	return stats
}

// ActiveRules exposes the data-driven rule ordering for API consumers.
func (s *RuleEngineService) ActiveRules(ctx context.Context) ([]models.OptimizationRule, error) {
	configured, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to load optimization rules")
	}
	return configured, nil
}
