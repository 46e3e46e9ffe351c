package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/infrastructure/persistence/models"
	"github.com/rollup/backend/internal/infrastructure/persistence/orgscope"
)

// GormMetricDefinitionRepository implements MetricDefinitionRepository using GORM
type GormMetricDefinitionRepository struct {
	db *gorm.DB
}

// NewGormMetricDefinitionRepository creates a new GormMetricDefinitionRepository
func NewGormMetricDefinitionRepository(db *gorm.DB) *GormMetricDefinitionRepository {
	return &GormMetricDefinitionRepository{db: db}
}

// FindByKey finds a metric definition by key within an org
func (r *GormMetricDefinitionRepository) FindByKey(ctx context.Context, orgID uuid.UUID, key string) (*consolidation.MetricDefinition, error) {
	var model models.MetricDefinitionModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("key = ?", key).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	def := model.ToDomain()
	return &def, nil
}

// FindAllForOrg returns every definition of an org in key order
func (r *GormMetricDefinitionRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.MetricDefinition, error) {
	var defModels []models.MetricDefinitionModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Order("key ASC").
		Find(&defModels).Error; err != nil {
		return nil, err
	}

	defs := make([]*consolidation.MetricDefinition, len(defModels))
	for i, model := range defModels {
		def := model.ToDomain()
		defs[i] = &def
	}
	return defs, nil
}

// Save creates or updates a definition. The (org_id, key) pair is the logical
// identity, so saving an existing key overwrites it in place.
func (r *GormMetricDefinitionRepository) Save(ctx context.Context, orgID uuid.UUID, def *consolidation.MetricDefinition) error {
	model := models.MetricDefinitionModelFromDomain(orgID, *def)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "aggregation", "decimals", "unit", "required_complete", "updated_at",
			}),
		}).
		Create(model).Error
}

// Delete removes a definition
func (r *GormMetricDefinitionRepository) Delete(ctx context.Context, orgID uuid.UUID, key string) error {
	result := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("key = ?", key).
		Delete(&models.MetricDefinitionModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormMetricDefinitionRepository implements MetricDefinitionRepository
var _ consolidation.MetricDefinitionRepository = (*GormMetricDefinitionRepository)(nil)
