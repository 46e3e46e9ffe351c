package consolidation

import (
	"context"
	"fmt"
	"sort"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HierarchyService manages org units and tenant memberships. Every mutation
// that touches the parent graph re-validates the whole org forest, so a
// cycle or orphan can never be persisted.
type HierarchyService struct {
	unitRepo   consolidation.OrgUnitRepository
	memberRepo consolidation.OrgUnitMemberRepository
}

// NewHierarchyService creates a new HierarchyService
func NewHierarchyService(unitRepo consolidation.OrgUnitRepository, memberRepo consolidation.OrgUnitMemberRepository) *HierarchyService {
	return &HierarchyService{
		unitRepo:   unitRepo,
		memberRepo: memberRepo,
	}
}

// CreateOrgUnit creates a new org unit under an optional parent
func (s *HierarchyService) CreateOrgUnit(ctx context.Context, orgID uuid.UUID, req CreateOrgUnitRequest) (*OrgUnitResponse, error) {
	exists, err := s.unitRepo.ExistsByCode(ctx, orgID, req.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Org unit with this code already exists")
	}

	unit, err := consolidation.NewOrgUnit(orgID, req.ParentID, req.Name, req.Code)
	if err != nil {
		return nil, err
	}
	if req.Currency != nil {
		unit.SetCurrency(valueobject.Currency(*req.Currency))
	}

	if err := s.validateWith(ctx, orgID, unit); err != nil {
		return nil, err
	}

	if err := s.unitRepo.Save(ctx, unit); err != nil {
		return nil, err
	}
	response := ToOrgUnitResponse(unit)
	return &response, nil
}

// UpdateOrgUnit renames, re-parents or re-currencies a unit. Re-parenting is
// validated against the full forest before saving.
func (s *HierarchyService) UpdateOrgUnit(ctx context.Context, orgID, unitID uuid.UUID, req UpdateOrgUnitRequest) (*OrgUnitResponse, error) {
	unit, err := s.findUnitForOrg(ctx, orgID, unitID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, shared.NewDomainError("INVALID_INPUT", "Org unit name cannot be empty")
		}
		unit.Name = *req.Name
	}
	if req.Currency != nil {
		unit.SetCurrency(valueobject.Currency(*req.Currency))
	}
	if req.ParentID != nil {
		if *req.ParentID == unitID {
			return nil, consolidation.NewCycleError(unit.Code)
		}
		unit.ParentID = req.ParentID
	}

	if err := s.validateWith(ctx, orgID, unit); err != nil {
		return nil, err
	}

	if err := s.unitRepo.Save(ctx, unit); err != nil {
		return nil, err
	}
	response := ToOrgUnitResponse(unit)
	return &response, nil
}

// DeactivateOrgUnit excludes the unit from future runs. Past facts keep
// referencing it, so the unit is never hard deleted here.
func (s *HierarchyService) DeactivateOrgUnit(ctx context.Context, orgID, unitID uuid.UUID) error {
	unit, err := s.findUnitForOrg(ctx, orgID, unitID)
	if err != nil {
		return err
	}
	unit.Deactivate()
	return s.unitRepo.Save(ctx, unit)
}

// GetOrgUnit retrieves one unit
func (s *HierarchyService) GetOrgUnit(ctx context.Context, orgID, unitID uuid.UUID) (*OrgUnitResponse, error) {
	unit, err := s.findUnitForOrg(ctx, orgID, unitID)
	if err != nil {
		return nil, err
	}
	response := ToOrgUnitResponse(unit)
	return &response, nil
}

// ListOrgUnits returns every unit of the org in creation order
func (s *HierarchyService) ListOrgUnits(ctx context.Context, orgID uuid.UUID) ([]OrgUnitResponse, error) {
	units, err := s.unitRepo.FindAllForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	responses := make([]OrgUnitResponse, 0, len(units))
	for _, u := range units {
		responses = append(responses, ToOrgUnitResponse(u))
	}
	return responses, nil
}

// ValidateHierarchy checks the org forest for cycles and orphans and reports
// overcommitted tenant shares as warnings.
func (s *HierarchyService) ValidateHierarchy(ctx context.Context, orgID uuid.UUID, period string) (*HierarchyValidationResponse, error) {
	units, err := s.unitRepo.FindAllForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := &HierarchyValidationResponse{Valid: true}
	graph := consolidation.NewHierarchyGraph(units)
	if err := graph.Validate(); err != nil {
		resp.Valid = false
		resp.Errors = append(resp.Errors, err.Error())
	}

	if period != "" {
		p, err := consolidation.ParsePeriod(period)
		if err != nil {
			return nil, err
		}
		members, err := s.memberRepo.FindAllForOrg(ctx, orgID)
		if err != nil {
			return nil, err
		}
		resp.Warnings = append(resp.Warnings, ShareWarnings(members, p)...)
	}
	return resp, nil
}

// AddMember attaches a tenant to a unit with a share and interval
func (s *HierarchyService) AddMember(ctx context.Context, orgID, unitID uuid.UUID, req AddMemberRequest) (*MemberResponse, error) {
	if _, err := s.findUnitForOrg(ctx, orgID, unitID); err != nil {
		return nil, err
	}
	member, err := consolidation.NewOrgUnitMember(orgID, unitID, req.TenantID, req.PercentShare, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	if err := s.memberRepo.Save(ctx, member); err != nil {
		return nil, err
	}
	response := ToMemberResponse(member)
	return &response, nil
}

// CloseMember ends a membership at the given date
func (s *HierarchyService) CloseMember(ctx context.Context, orgID, memberID uuid.UUID, req CloseMemberRequest) (*MemberResponse, error) {
	member, err := s.memberRepo.FindByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	if err := member.Close(req.EndDate); err != nil {
		return nil, err
	}
	if err := s.memberRepo.Save(ctx, member); err != nil {
		return nil, err
	}
	response := ToMemberResponse(member)
	return &response, nil
}

// ListMembers returns a unit's memberships
func (s *HierarchyService) ListMembers(ctx context.Context, orgID, unitID uuid.UUID) ([]MemberResponse, error) {
	if _, err := s.findUnitForOrg(ctx, orgID, unitID); err != nil {
		return nil, err
	}
	members, err := s.memberRepo.FindByOrgUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	responses := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		responses = append(responses, ToMemberResponse(m))
	}
	return responses, nil
}

func (s *HierarchyService) findUnitForOrg(ctx context.Context, orgID, unitID uuid.UUID) (*consolidation.OrgUnit, error) {
	unit, err := s.unitRepo.FindByID(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	return unit, nil
}

// validateWith validates the org forest as it would look with the given unit
// inserted or updated.
func (s *HierarchyService) validateWith(ctx context.Context, orgID uuid.UUID, unit *consolidation.OrgUnit) error {
	units, err := s.unitRepo.FindAllForOrg(ctx, orgID)
	if err != nil {
		return err
	}
	merged := make([]*consolidation.OrgUnit, 0, len(units)+1)
	replaced := false
	for _, u := range units {
		if u.ID == unit.ID {
			merged = append(merged, unit)
			replaced = true
			continue
		}
		merged = append(merged, u)
	}
	if !replaced {
		merged = append(merged, unit)
	}
	return consolidation.NewHierarchyGraph(merged).Validate()
}

// ShareWarnings reports tenants whose summed share across units exceeds 100%
// for the period. Overcommitment is legal but worth surfacing.
func ShareWarnings(members []*consolidation.OrgUnitMember, period consolidation.Period) []string {
	hundred := decimal.NewFromInt(100)
	totals := make(map[uuid.UUID]decimal.Decimal)
	for _, m := range members {
		if !m.ActiveDuring(period) {
			continue
		}
		totals[m.TenantID] = totals[m.TenantID].Add(m.PercentShare)
	}
	overcommitted := make([]uuid.UUID, 0, len(totals))
	for tenantID, total := range totals {
		if total.GreaterThan(hundred) {
			overcommitted = append(overcommitted, tenantID)
		}
	}
	sort.Slice(overcommitted, func(i, j int) bool {
		return overcommitted[i].String() < overcommitted[j].String()
	})
	var warnings []string
	for _, tenantID := range overcommitted {
		warnings = append(warnings, fmt.Sprintf("tenant %s shares sum to %s%% in %s", tenantID, totals[tenantID].String(), period.Key()))
	}
	return warnings
}
