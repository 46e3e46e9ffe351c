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

// GormOrgUnitMemberRepository implements OrgUnitMemberRepository using GORM
type GormOrgUnitMemberRepository struct {
	db *gorm.DB
}

// NewGormOrgUnitMemberRepository creates a new GormOrgUnitMemberRepository
func NewGormOrgUnitMemberRepository(db *gorm.DB) *GormOrgUnitMemberRepository {
	return &GormOrgUnitMemberRepository{db: db}
}

// FindByID finds a membership by its ID
func (r *GormOrgUnitMemberRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.OrgUnitMember, error) {
	var model models.OrgUnitMemberModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForOrg returns every membership of an org
func (r *GormOrgUnitMemberRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.OrgUnitMember, error) {
	var memberModels []models.OrgUnitMemberModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Order("created_at ASC, id ASC").
		Find(&memberModels).Error; err != nil {
		return nil, err
	}
	return toDomainMembers(memberModels), nil
}

// FindByOrgUnit returns a unit's memberships
func (r *GormOrgUnitMemberRepository) FindByOrgUnit(ctx context.Context, orgUnitID uuid.UUID) ([]*consolidation.OrgUnitMember, error) {
	var memberModels []models.OrgUnitMemberModel
	if err := r.db.WithContext(ctx).
		Where("org_unit_id = ?", orgUnitID).
		Order("created_at ASC, id ASC").
		Find(&memberModels).Error; err != nil {
		return nil, err
	}
	return toDomainMembers(memberModels), nil
}

// FindByTenant returns a tenant's memberships across units
func (r *GormOrgUnitMemberRepository) FindByTenant(ctx context.Context, orgID, tenantID uuid.UUID) ([]*consolidation.OrgUnitMember, error) {
	var memberModels []models.OrgUnitMemberModel
	if err := r.db.WithContext(ctx).
		Scopes(orgscope.OrgScope(orgID)).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC, id ASC").
		Find(&memberModels).Error; err != nil {
		return nil, err
	}
	return toDomainMembers(memberModels), nil
}

// Save creates or updates a membership
func (r *GormOrgUnitMemberRepository) Save(ctx context.Context, member *consolidation.OrgUnitMember) error {
	model := models.OrgUnitMemberModelFromDomain(member)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete removes a membership
func (r *GormOrgUnitMemberRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.OrgUnitMemberModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func toDomainMembers(memberModels []models.OrgUnitMemberModel) []*consolidation.OrgUnitMember {
	members := make([]*consolidation.OrgUnitMember, len(memberModels))
	for i, model := range memberModels {
		members[i] = model.ToDomain()
	}
	return members
}

// Ensure GormOrgUnitMemberRepository implements OrgUnitMemberRepository
var _ consolidation.OrgUnitMemberRepository = (*GormOrgUnitMemberRepository)(nil)
