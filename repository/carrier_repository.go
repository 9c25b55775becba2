package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/vm-ec/vm-appetite-check/models"
)

// CarrierRepository defines data-access operations for the carrier
// directory.
type CarrierRepository interface {
	Create(ctx context.Context, carrier *models.Carrier) error
	FindByID(ctx context.Context, id string) (*models.Carrier, error)
	FindAll(ctx context.Context, page, pageSize int) ([]models.Carrier, int64, error)
}

// GormCarrierRepository implements CarrierRepository using GORM.
type GormCarrierRepository struct {
	db *gorm.DB
}

// NewGormCarrierRepository creates a new GormCarrierRepository.
func NewGormCarrierRepository(db *gorm.DB) CarrierRepository {
	return &GormCarrierRepository{db: db}
}

func (r *GormCarrierRepository) Create(ctx context.Context, carrier *models.Carrier) error {
	return r.db.WithContext(ctx).Create(carrier).Error
}

func (r *GormCarrierRepository) FindByID(ctx context.Context, id string) (*models.Carrier, error) {
	var carrier models.Carrier
	if err := r.db.WithContext(ctx).First(&carrier, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &carrier, nil
}

func (r *GormCarrierRepository) FindAll(ctx context.Context, page, pageSize int) ([]models.Carrier, int64, error) {
	var carriers []models.Carrier
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Carrier{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.
		Offset(offset).Limit(pageSize).
		Order("name ASC").
		Find(&carriers).Error; err != nil {
		return nil, 0, err
	}

	return carriers, total, nil
}
