package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/infrastructure/persistence/models"
	"github.com/rollup/backend/internal/infrastructure/persistence/orgscope"
)

// GormOrgUnitRepository implements OrgUnitRepository using GORM
type GormOrgUnitRepository struct {
	db *gorm.DB
}

// NewGormOrgUnitRepository creates a new GormOrgUnitRepository
func NewGormOrgUnitRepository(db *gorm.DB) *GormOrgUnitRepository {
	return &GormOrgUnitRepository{db: db}
}

// FindByID finds an org unit by its ID
func (r *GormOrgUnitRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.OrgUnit, error) {
	var model models.OrgUnitModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCode finds an org unit by its code within an org
func (r *GormOrgUnitRepository) FindByCode(ctx context.Context, orgID uuid.UUID, code string) (*consolidation.OrgUnit, error) {
	var model models.OrgUnitModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("code = ?", code).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForOrg returns every unit of an org in creation order. The hierarchy
// graph is rebuilt from this full set, so no pagination applies here.
func (r *GormOrgUnitRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.OrgUnit, error) {
	var unitModels []models.OrgUnitModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Order("created_at ASC, id ASC").
		Find(&unitModels).Error; err != nil {
		return nil, err
	}

	units := make([]*consolidation.OrgUnit, len(unitModels))
	for i, model := range unitModels {
		units[i] = model.ToDomain()
	}
	return units, nil
}

// Save creates or updates an org unit
func (r *GormOrgUnitRepository) Save(ctx context.Context, unit *consolidation.OrgUnit) error {
	model := models.OrgUnitModelFromDomain(unit)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete deletes an org unit
func (r *GormOrgUnitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.OrgUnitModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ExistsByCode checks if an org unit with the given code exists in the org
func (r *GormOrgUnitRepository) ExistsByCode(ctx context.Context, orgID uuid.UUID, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OrgUnitModel{}).
		Scopes(orgscope.OrgScope(orgID)).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure GormOrgUnitRepository implements OrgUnitRepository
var _ consolidation.OrgUnitRepository = (*GormOrgUnitRepository)(nil)
