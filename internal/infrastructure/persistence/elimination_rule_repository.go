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

// GormEliminationRuleRepository implements EliminationRuleRepository using GORM
type GormEliminationRuleRepository struct {
	db *gorm.DB
}

// NewGormEliminationRuleRepository creates a new GormEliminationRuleRepository
func NewGormEliminationRuleRepository(db *gorm.DB) *GormEliminationRuleRepository {
	return &GormEliminationRuleRepository{db: db}
}

// FindByID finds a rule by its ID
func (r *GormEliminationRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.EliminationRule, error) {
	var model models.EliminationRuleModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveForOrg returns active rules in creation order. The engine applies
// rules in exactly this order, so the ordering here is load-bearing.
func (r *GormEliminationRuleRepository) FindActiveForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.EliminationRule, error) {
	var ruleModels []models.EliminationRuleModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("active = ?", true).
		Order("created_at ASC, id ASC").
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}
	return toDomainRules(ruleModels), nil
}

// FindAllForOrg returns all rules, active or not, in creation order
func (r *GormEliminationRuleRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.EliminationRule, error) {
	var ruleModels []models.EliminationRuleModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Order("created_at ASC, id ASC").
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}
	return toDomainRules(ruleModels), nil
}

// Save creates or updates a rule
func (r *GormEliminationRuleRepository) Save(ctx context.Context, rule *consolidation.EliminationRule) error {
	model := models.EliminationRuleModelFromDomain(rule)
	return r.db.WithContext(ctx).Save(model).Error
}

func toDomainRules(ruleModels []models.EliminationRuleModel) []*consolidation.EliminationRule {
	rules := make([]*consolidation.EliminationRule, len(ruleModels))
	for i, model := range ruleModels {
		rules[i] = model.ToDomain()
	}
	return rules
}

// Ensure GormEliminationRuleRepository implements EliminationRuleRepository
var _ consolidation.EliminationRuleRepository = (*GormEliminationRuleRepository)(nil)
