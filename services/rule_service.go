package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/repository"
)

// RuleService handles single-rule CRUD. Bulk ingestion lives in
// UploadService; the two share the repository, not each other.
type RuleService interface {
	ListRules(ctx context.Context, page, pageSize int, sortBy string) ([]models.Rule, int64, *ServiceError)
	GetRule(ctx context.Context, id string) (*models.Rule, *ServiceError)
	CreateRule(ctx context.Context, rule *models.Rule, actor string) (*models.Rule, *ServiceError)
	UpdateRule(ctx context.Context, id string, rule *models.Rule) (*models.Rule, *ServiceError)
	DeleteRule(ctx context.Context, id string) *ServiceError
}

type ruleServiceImpl struct {
	repo   repository.RuleRepository
	logger *zap.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(repo repository.RuleRepository, logger *zap.Logger) RuleService {
	return &ruleServiceImpl{repo: repo, logger: logger}
}

func (s *ruleServiceImpl) ListRules(ctx context.Context, page, pageSize int, sortBy string) ([]models.Rule, int64, *ServiceError) {
	rules, total, err := s.repo.FindAll(ctx, page, pageSize, sortBy)
	if err != nil {
		s.logger.Error("failed to list rules", zap.Error(err))
		return nil, 0, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "failed to list rules"}
	}
	if rules == nil {
		rules = []models.Rule{}
	}
	return rules, total, nil
}

func (s *ruleServiceImpl) GetRule(ctx context.Context, id string) (*models.Rule, *ServiceError) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("rule %q not found", id)}
		}
		s.logger.Error("failed to fetch rule", zap.String("rule_id", id), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "failed to fetch rule"}
	}
	return rule, nil
}

// CreateRule stamps provenance server-side: whatever createdBy or
// createdAt the client sends is discarded.
func (s *ruleServiceImpl) CreateRule(ctx context.Context, rule *models.Rule, actor string) (*models.Rule, *ServiceError) {
	if serr := normalizeRule(rule); serr != nil {
		return nil, serr
	}
	if rule.RuleID == "" {
		rule.RuleID = models.NewRuleID()
	}
	rule.CreatedBy = actor
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = nil

	if err := s.repo.Create(ctx, rule); err != nil {
		s.logger.Error("failed to create rule", zap.String("rule_id", rule.RuleID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "failed to create rule"}
	}
	s.logger.Info("rule created", zap.String("rule_id", rule.RuleID), zap.String("actor", actor))
	return rule, nil
}

// UpdateRule replaces a rule's content while preserving its identity
// and original provenance.
func (s *ruleServiceImpl) UpdateRule(ctx context.Context, id string, rule *models.Rule) (*models.Rule, *ServiceError) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("rule %q not found", id)}
		}
		s.logger.Error("failed to fetch rule", zap.String("rule_id", id), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "failed to fetch rule"}
	}

	if serr := normalizeRule(rule); serr != nil {
		return nil, serr
	}

	now := time.Now().UTC()
	rule.RuleID = existing.RuleID
	rule.CreatedBy = existing.CreatedBy
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = &now

	if err := s.repo.Update(ctx, rule); err != nil {
		s.logger.Error("failed to update rule", zap.String("rule_id", id), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "failed to update rule"}
	}
	s.logger.Info("rule updated", zap.String("rule_id", id))
	return rule, nil
}

func (s *ruleServiceImpl) DeleteRule(ctx context.Context, id string) *ServiceError {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ServiceError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("rule %q not found", id)}
		}
		s.logger.Error("failed to delete rule", zap.String("rule_id", id), zap.Error(err))
		return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "failed to delete rule"}
	}
	s.logger.Info("rule deleted", zap.String("rule_id", id))
	return nil
}

// normalizeRule applies the same enum handling the upload validator
// uses, so a rule is shaped identically whether it arrives one at a
// time or in a file.
func normalizeRule(rule *models.Rule) *ServiceError {
	if rule.Title == "" {
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: "missing title"}
	}

	if rule.Priority == "" {
		rule.Priority = models.PriorityMedium
	} else if rule.Priority = models.NormalizePriority(rule.Priority); rule.Priority == "" {
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: "invalid priority (expected low, medium or high)"}
	}

	if rule.Outcome = models.NormalizeOutcome(rule.Outcome); rule.Outcome == "" {
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: "missing or invalid outcome (expected accept, reject or refer)"}
	}

	if rule.Status == "" {
		rule.Status = models.StatusDraft
	} else if rule.Status = models.NormalizeStatus(rule.Status); rule.Status == "" {
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: "invalid status (expected Draft, Active or Inactive)"}
	}

	return nil
}
