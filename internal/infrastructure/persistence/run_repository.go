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

// GormConsolRunRepository implements ConsolRunRepository using GORM
type GormConsolRunRepository struct {
	db *gorm.DB
}

// NewGormConsolRunRepository creates a new GormConsolRunRepository
func NewGormConsolRunRepository(db *gorm.DB) *GormConsolRunRepository {
	return &GormConsolRunRepository{db: db}
}

// FindByID finds a run by its ID
func (r *GormConsolRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.ConsolRun, error) {
	var model models.ConsolRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForOrg returns runs matching the filter, newest first
func (r *GormConsolRunRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter consolidation.RunFilter) ([]*consolidation.ConsolRun, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ConsolRunModel{}).
		Scopes(orgscope.OrgScope(orgID))

	if filter.Period != nil {
		query = query.Where("period = ?", *filter.Period)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	query = applyPagination(query, filter.Filter, "created_at DESC")

	var runModels []models.ConsolRunModel
	if err := query.Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*consolidation.ConsolRun, len(runModels))
	for i, model := range runModels {
		runs[i] = model.ToDomain()
	}
	return runs, nil
}

// FindActive returns the pending or running run for an org and period
func (r *GormConsolRunRepository) FindActive(ctx context.Context, orgID uuid.UUID, period string) (*consolidation.ConsolRun, error) {
	var model models.ConsolRunModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("period = ? AND status IN ?", period,
			[]consolidation.RunStatus{consolidation.RunStatusPending, consolidation.RunStatusRunning}).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a run
func (r *GormConsolRunRepository) Save(ctx context.Context, run *consolidation.ConsolRun) error {
	model := models.ConsolRunModelFromDomain(run)
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure GormConsolRunRepository implements ConsolRunRepository
var _ consolidation.ConsolRunRepository = (*GormConsolRunRepository)(nil)
