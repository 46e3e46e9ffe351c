package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/rollup/backend/internal/infrastructure/persistence/models"
)

// GormFxRateRepository implements FxRateRepository using GORM
type GormFxRateRepository struct {
	db *gorm.DB
}

// NewGormFxRateRepository creates a new GormFxRateRepository
func NewGormFxRateRepository(db *gorm.DB) *GormFxRateRepository {
	return &GormFxRateRepository{db: db}
}

// FindOnOrBefore returns the most recent rate for the pair dated on or before
// the given day. Future rates are never returned.
func (r *GormFxRateRepository) FindOnOrBefore(ctx context.Context, base, quote valueobject.Currency, day time.Time) (*consolidation.FxRate, error) {
	var model models.FxRateModel
	if err := r.db.WithContext(ctx).
		Where("base = ? AND quote = ? AND day <= ?", string(base), string(quote), day.UTC().Truncate(24*time.Hour)).
		Order("day DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindExact finds the rate recorded for a pair on a specific day
func (r *GormFxRateRepository) FindExact(ctx context.Context, base, quote valueobject.Currency, day time.Time) (*consolidation.FxRate, error) {
	var model models.FxRateModel
	if err := r.db.WithContext(ctx).
		Where("base = ? AND quote = ? AND day = ?", string(base), string(quote), day.UTC().Truncate(24*time.Hour)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForPair returns a pair's rates, most recent first
func (r *GormFxRateRepository) FindAllForPair(ctx context.Context, base, quote valueobject.Currency, limit int) ([]*consolidation.FxRate, error) {
	query := r.db.WithContext(ctx).
		Where("base = ? AND quote = ?", string(base), string(quote)).
		Order("day DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rateModels []models.FxRateModel
	if err := query.Find(&rateModels).Error; err != nil {
		return nil, err
	}

	rates := make([]*consolidation.FxRate, len(rateModels))
	for i, model := range rateModels {
		rates[i] = model.ToDomain()
	}
	return rates, nil
}

// Save records a new rate. Rates are immutable: recording a duplicate
// (day, base, quote) is rejected instead of overwriting.
func (r *GormFxRateRepository) Save(ctx context.Context, rate *consolidation.FxRate) error {
	model := models.FxRateModelFromDomain(rate)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}, {Name: "base"}, {Name: "quote"}},
			DoNothing: true,
		}).
		Create(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("FX_RATE_EXISTS", "An FX rate for this pair and day is already recorded")
	}
	return nil
}

// Ensure GormFxRateRepository implements FxRateRepository
var _ consolidation.FxRateRepository = (*GormFxRateRepository)(nil)
