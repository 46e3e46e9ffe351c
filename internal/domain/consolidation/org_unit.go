package consolidation

import (
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrgUnit is a node in an organization's consolidation hierarchy. A nil
// ParentID marks a root; the per-org parent graph must form a forest.
type OrgUnit struct {
	shared.BaseEntity
	OrgID    uuid.UUID
	ParentID *uuid.UUID
	Name     string
	Code     string
	// Currency overrides the org base currency when set.
	Currency *valueobject.Currency
	Active   bool
}

// NewOrgUnit creates an active org unit.
func NewOrgUnit(orgID uuid.UUID, parentID *uuid.UUID, name, code string) (*OrgUnit, error) {
	if name == "" || code == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Org unit name and code are required")
	}
	return &OrgUnit{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		ParentID:   parentID,
		Name:       name,
		Code:       code,
		Active:     true,
	}, nil
}

// SetCurrency overrides the inherited org base currency.
func (u *OrgUnit) SetCurrency(c valueobject.Currency) {
	u.Currency = &c
	u.UpdatedAt = time.Now()
}

// Deactivate marks the unit inactive. Inactive units are excluded from
// future scope resolution but past facts keep referencing them.
func (u *OrgUnit) Deactivate() {
	u.Active = false
	u.UpdatedAt = time.Now()
}

// IsRoot reports whether the unit has no parent.
func (u *OrgUnit) IsRoot() bool {
	return u.ParentID == nil
}

// OrgUnitMember attaches a tenant to an org unit with a fractional share
// over the half-open interval [StartDate, EndDate). A nil EndDate means the
// membership is open-ended. A tenant may belong to several units at once;
// shares across units are not forced to sum to 100 (callers warn instead).
type OrgUnitMember struct {
	shared.BaseEntity
	OrgID        uuid.UUID
	OrgUnitID    uuid.UUID
	TenantID     uuid.UUID
	PercentShare decimal.Decimal
	StartDate    time.Time
	EndDate      *time.Time
}

// NewOrgUnitMember creates a membership after validating the share bounds
// and interval ordering.
func NewOrgUnitMember(orgID, orgUnitID, tenantID uuid.UUID, percentShare decimal.Decimal, startDate time.Time, endDate *time.Time) (*OrgUnitMember, error) {
	if percentShare.IsNegative() || percentShare.GreaterThan(decimal.NewFromInt(100)) {
		return nil, ErrInvalidPercentShare
	}
	if endDate != nil && !endDate.After(startDate) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Membership end date must be after start date")
	}
	return &OrgUnitMember{
		BaseEntity:   shared.NewBaseEntity(),
		OrgID:        orgID,
		OrgUnitID:    orgUnitID,
		TenantID:     tenantID,
		PercentShare: percentShare,
		StartDate:    startDate,
		EndDate:      endDate,
	}, nil
}

// ActiveDuring reports whether the membership interval overlaps the period.
func (m *OrgUnitMember) ActiveDuring(p Period) bool {
	return p.OverlapDays(m.StartDate, m.EndDate) > 0
}

// Close ends the membership at the given date.
func (m *OrgUnitMember) Close(end time.Time) error {
	if !end.After(m.StartDate) {
		return shared.NewDomainError("INVALID_INPUT", "Membership end date must be after start date")
	}
	m.EndDate = &end
	m.UpdatedAt = time.Now()
	return nil
}
