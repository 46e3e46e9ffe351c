package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/infrastructure/persistence/models"
	"github.com/rollup/backend/internal/infrastructure/persistence/orgscope"
)

// GormConsolAdjustmentRepository implements ConsolAdjustmentRepository using GORM
type GormConsolAdjustmentRepository struct {
	db *gorm.DB
}

// NewGormConsolAdjustmentRepository creates a new GormConsolAdjustmentRepository
func NewGormConsolAdjustmentRepository(db *gorm.DB) *GormConsolAdjustmentRepository {
	return &GormConsolAdjustmentRepository{db: db}
}

// FindByID finds an adjustment by its ID
func (r *GormConsolAdjustmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.ConsolAdjustment, error) {
	var model models.ConsolAdjustmentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindPublishedForPeriod returns every published adjustment for an org and
// period, all versions included. The applier picks the winning version.
func (r *GormConsolAdjustmentRepository) FindPublishedForPeriod(ctx context.Context, orgID uuid.UUID, period string) ([]*consolidation.ConsolAdjustment, error) {
	var adjustmentModels []models.ConsolAdjustmentModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("period = ? AND published = ?", period, true).
		Order("created_at ASC, id ASC").
		Find(&adjustmentModels).Error; err != nil {
		return nil, err
	}
	return toDomainAdjustments(adjustmentModels), nil
}

// FindAllForOrg returns adjustments matching the filter
func (r *GormConsolAdjustmentRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter consolidation.AdjustmentFilter) ([]*consolidation.ConsolAdjustment, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ConsolAdjustmentModel{}).
		Scopes(orgscope.OrgScope(orgID))

	if filter.Period != nil {
		query = query.Where("period = ?", *filter.Period)
	}
	if filter.Metric != nil {
		query = query.Where("metric = ?", *filter.Metric)
	}
	if filter.OrgUnitID != nil {
		query = query.Where("org_unit_id = ?", *filter.OrgUnitID)
	}
	if filter.Published != nil {
		query = query.Where("published = ?", *filter.Published)
	}

	query = applyPagination(query, filter.Filter, "created_at DESC, version DESC")

	var adjustmentModels []models.ConsolAdjustmentModel
	if err := query.Find(&adjustmentModels).Error; err != nil {
		return nil, err
	}
	return toDomainAdjustments(adjustmentModels), nil
}

// MaxVersion returns the highest version recorded for a logical key, 0 when
// none exists. Org-level adjustments (nil org unit) are their own key space.
func (r *GormConsolAdjustmentRepository) MaxVersion(ctx context.Context, orgID uuid.UUID, orgUnitID *uuid.UUID, period, metric string) (int, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ConsolAdjustmentModel{}).
		Scopes(orgscope.OrgScope(orgID)).
		Where("period = ? AND metric = ?", period, metric)
	if orgUnitID != nil {
		query = query.Where("org_unit_id = ?", *orgUnitID)
	} else {
		query = query.Where("org_unit_id IS NULL")
	}

	var maxVersion int
	if err := query.Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	return maxVersion, nil
}

// Save creates or updates an adjustment
func (r *GormConsolAdjustmentRepository) Save(ctx context.Context, adjustment *consolidation.ConsolAdjustment) error {
	model := models.ConsolAdjustmentModelFromDomain(adjustment)
	return r.db.WithContext(ctx).Save(model).Error
}

func toDomainAdjustments(adjustmentModels []models.ConsolAdjustmentModel) []*consolidation.ConsolAdjustment {
	adjustments := make([]*consolidation.ConsolAdjustment, len(adjustmentModels))
	for i, model := range adjustmentModels {
		adjustments[i] = model.ToDomain()
	}
	return adjustments
}

// applyPagination applies the shared filter's pagination and ordering. The
// OrderBy field must already be whitelisted by the caller (see
// ValidateSortField); defaultOrder is used when none is set.
func applyPagination(query *gorm.DB, filter shared.Filter, defaultOrder string) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.ToLower(filter.OrderDir) == "desc" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		query = query.Order(defaultOrder)
	}

	return query
}

// Ensure GormConsolAdjustmentRepository implements ConsolAdjustmentRepository
var _ consolidation.ConsolAdjustmentRepository = (*GormConsolAdjustmentRepository)(nil)
