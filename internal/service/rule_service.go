package service

import (
	"allocation-service/internal/entity"
	"allocation-service/internal/metrics"
	"context"
	"github.com/rs/zerolog"
	"os"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// RuleService manages allocation rules and serves them, cached, to evaluations.
type RuleService struct {
	ruleRepo RuleStore
	cache    Cache
	metrics  *metrics.Metrics
}

// NewRuleService creates a new instance of RuleService.
func NewRuleService(ruleRepo RuleStore, cache Cache, m *metrics.Metrics) *RuleService {
	return &RuleService{
		ruleRepo: ruleRepo,
		cache:    cache,
		metrics:  m,
	}
}

// CreateRule validates and stores a new rule.
func (s *RuleService) CreateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error) {
	rule.Normalize()
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	created, err := s.ruleRepo.CreateRule(ctx, rule)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating allocation rule")
		return nil, err
	}

	s.invalidate(ctx)
	logger.Info().Msgf("Created allocation rule %d (%s)", created.ID, created.Name)
	return created, nil
}

// UpdateRule validates and replaces an existing rule.
func (s *RuleService) UpdateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error) {
	rule.Normalize()
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	if err := s.ruleRepo.UpdateRule(ctx, rule); err != nil {
		logger.Error().Err(err).Msgf("Error updating allocation rule %d", rule.ID)
		return nil, err
	}

	s.invalidate(ctx)
	return rule, nil
}

func (s *RuleService) DeleteRule(ctx context.Context, id int) error {
	if err := s.ruleRepo.DeleteRule(ctx, id); err != nil {
		logger.Error().Err(err).Msgf("Error deleting allocation rule %d", id)
		return err
	}

	s.invalidate(ctx)
	return nil
}

func (s *RuleService) GetRule(ctx context.Context, id int) (*entity.AllocationRule, error) {
	return s.ruleRepo.GetRule(ctx, id)
}

// ListRules returns the rules visible to a company, read from the database.
func (s *RuleService) ListRules(ctx context.Context, companyID int) ([]*entity.AllocationRule, error) {
	return s.ruleRepo.ListRules(ctx, companyID)
}

// RulesForCompany serves evaluations: cache first, then the database.
func (s *RuleService) RulesForCompany(ctx context.Context, companyID int) ([]*entity.AllocationRule, error) {
	rules, ok, err := s.cache.GetRules(ctx, companyID)
	if err != nil {
		logger.Warn().Err(err).Msgf("Error reading rules of company %d from cache", companyID)
	}
	if ok {
		s.metrics.RuleCacheHits.WithLabelValues("hit").Inc()
		return rules, nil
	}
	s.metrics.RuleCacheHits.WithLabelValues("miss").Inc()

	rules, err = s.ruleRepo.ListRules(ctx, companyID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing rules of company %d", companyID)
		return nil, err
	}

	if err := s.cache.SetRules(ctx, companyID, rules); err != nil {
		logger.Warn().Err(err).Msgf("Error caching rules of company %d", companyID)
	}
	return rules, nil
}

func (s *RuleService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateRules(ctx); err != nil {
		logger.Error().Err(err).Msg("Error invalidating rule cache")
	}
}
