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

// GormConsolFactRepository implements the read side of ConsolFactRepository
// using GORM. Fact writes go through the run committer only, inside the
// commit transaction.
type GormConsolFactRepository struct {
	db *gorm.DB
}

// NewGormConsolFactRepository creates a new GormConsolFactRepository
func NewGormConsolFactRepository(db *gorm.DB) *GormConsolFactRepository {
	return &GormConsolFactRepository{db: db}
}

// FindAllForOrg returns facts matching the filter
func (r *GormConsolFactRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter consolidation.FactFilter) ([]*consolidation.ConsolFact, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ConsolFactModel{}).
		Scopes(orgscope.OrgScope(orgID))

	if filter.OrgUnitID != nil {
		query = query.Where("org_unit_id = ?", *filter.OrgUnitID)
	}
	if filter.Metric != nil {
		query = query.Where("metric = ?", *filter.Metric)
	}
	if filter.PeriodFrom != nil {
		query = query.Where("period >= ?", *filter.PeriodFrom)
	}
	if filter.PeriodTo != nil {
		query = query.Where("period <= ?", *filter.PeriodTo)
	}
	if filter.RunID != nil {
		query = query.Where("run_id = ?", *filter.RunID)
	}

	query = applyPagination(query, filter.Filter, "period ASC, org_unit_id ASC, metric ASC")

	var factModels []models.ConsolFactModel
	if err := query.Find(&factModels).Error; err != nil {
		return nil, err
	}
	return toDomainFacts(factModels), nil
}

// FindByRunID returns the facts a run committed
func (r *GormConsolFactRepository) FindByRunID(ctx context.Context, runID uuid.UUID) ([]*consolidation.ConsolFact, error) {
	var factModels []models.ConsolFactModel
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("org_unit_id ASC, metric ASC").
		Find(&factModels).Error; err != nil {
		return nil, err
	}
	return toDomainFacts(factModels), nil
}

// FindByKey returns the current fact for a unique key, if any
func (r *GormConsolFactRepository) FindByKey(ctx context.Context, orgID, orgUnitID uuid.UUID, period, metric string) (*consolidation.ConsolFact, error) {
	var model models.ConsolFactModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("org_unit_id = ? AND period = ? AND metric = ?", orgUnitID, period, metric).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func toDomainFacts(factModels []models.ConsolFactModel) []*consolidation.ConsolFact {
	facts := make([]*consolidation.ConsolFact, len(factModels))
	for i, model := range factModels {
		facts[i] = model.ToDomain()
	}
	return facts
}

// Ensure GormConsolFactRepository implements ConsolFactRepository
var _ consolidation.ConsolFactRepository = (*GormConsolFactRepository)(nil)
