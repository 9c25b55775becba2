package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/vm-ec/vm-appetite-check/models"
)

// RuleRepository defines data-access operations for underwriting rules.
// The upload pipeline consumes it through this interface only.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.Rule) error
	FindByID(ctx context.Context, id string) (*models.Rule, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Rule, error)
	Update(ctx context.Context, rule *models.Rule) error
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context, page, pageSize int, sortBy string) ([]models.Rule, int64, error)
}

// Columns exposed to the list endpoint's sortBy parameter. Anything
// else falls back to newest-first.
var ruleSortColumns = map[string]string{
	"title":     "title",
	"carrier":   "carrier",
	"priority":  "priority",
	"status":    "status",
	"outcome":   "outcome",
	"createdAt": "created_at",
}

// GormRuleRepository implements RuleRepository using GORM.
type GormRuleRepository struct {
	db *gorm.DB
}

// NewGormRuleRepository creates a new GormRuleRepository.
func NewGormRuleRepository(db *gorm.DB) RuleRepository {
	return &GormRuleRepository{db: db}
}

func (r *GormRuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *GormRuleRepository) FindByID(ctx context.Context, id string) (*models.Rule, error) {
	var rule models.Rule
	if err := r.db.WithContext(ctx).First(&rule, "rule_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *GormRuleRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rules []models.Rule
	if err := r.db.WithContext(ctx).
		Where("rule_id IN ?", ids).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *GormRuleRepository) Update(ctx context.Context, rule *models.Rule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *GormRuleRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Rule{}, "rule_id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRuleRepository) FindAll(ctx context.Context, page, pageSize int, sortBy string) ([]models.Rule, int64, error) {
	var rules []models.Rule
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Rule{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC"
	if col, ok := ruleSortColumns[sortBy]; ok {
		order = col + " ASC"
	}

	offset := (page - 1) * pageSize
	if err := query.
		Offset(offset).Limit(pageSize).
		Order(order).
		Find(&rules).Error; err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}
