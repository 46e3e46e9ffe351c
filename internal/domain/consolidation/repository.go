package consolidation

import (
	"context"
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// OrgUnitRepository defines the interface for org unit persistence.
type OrgUnitRepository interface {
	// FindByID finds an org unit by ID
	FindByID(ctx context.Context, id uuid.UUID) (*OrgUnit, error)

	// FindByCode finds an org unit by code within an org
	FindByCode(ctx context.Context, orgID uuid.UUID, code string) (*OrgUnit, error)

	// FindAllForOrg returns every unit of an org in creation order
	FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*OrgUnit, error)

	// Save creates or updates an org unit
	Save(ctx context.Context, unit *OrgUnit) error

	// Delete soft deletes an org unit
	Delete(ctx context.Context, id uuid.UUID) error

	// ExistsByCode checks code uniqueness within an org
	ExistsByCode(ctx context.Context, orgID uuid.UUID, code string) (bool, error)
}

// OrgUnitMemberRepository defines the interface for membership persistence.
type OrgUnitMemberRepository interface {
	// FindByID finds a membership by ID
	FindByID(ctx context.Context, id uuid.UUID) (*OrgUnitMember, error)

	// FindAllForOrg returns every membership of an org
	FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*OrgUnitMember, error)

	// FindByOrgUnit returns a unit's memberships
	FindByOrgUnit(ctx context.Context, orgUnitID uuid.UUID) ([]*OrgUnitMember, error)

	// FindByTenant returns a tenant's memberships across units
	FindByTenant(ctx context.Context, orgID, tenantID uuid.UUID) ([]*OrgUnitMember, error)

	// Save creates or updates a membership
	Save(ctx context.Context, member *OrgUnitMember) error

	// Delete removes a membership
	Delete(ctx context.Context, id uuid.UUID) error
}

// MetricDefinitionRepository defines the interface for metric definition
// persistence. The registry for a run is built from these rows.
type MetricDefinitionRepository interface {
	// FindByKey finds a definition by metric key within an org
	FindByKey(ctx context.Context, orgID uuid.UUID, key string) (*MetricDefinition, error)

	// FindAllForOrg returns every definition of an org in key order
	FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*MetricDefinition, error)

	// Save creates or updates a definition
	Save(ctx context.Context, orgID uuid.UUID, def *MetricDefinition) error

	// Delete removes a definition
	Delete(ctx context.Context, orgID uuid.UUID, key string) error
}

// EliminationRuleRepository defines the interface for rule persistence.
type EliminationRuleRepository interface {
	// FindByID finds a rule by ID
	FindByID(ctx context.Context, id uuid.UUID) (*EliminationRule, error)

	// FindActiveForOrg returns active rules in creation order, the order the
	// engine applies them in
	FindActiveForOrg(ctx context.Context, orgID uuid.UUID) ([]*EliminationRule, error)

	// FindAllForOrg returns all rules, active or not, in creation order
	FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*EliminationRule, error)

	// Save creates or updates a rule
	Save(ctx context.Context, rule *EliminationRule) error
}

// AdjustmentFilter defines filtering options for adjustment queries.
type AdjustmentFilter struct {
	shared.Filter
	Period    *string
	Metric    *string
	OrgUnitID *uuid.UUID
	Published *bool
}

// ConsolAdjustmentRepository defines the interface for adjustment
// persistence.
type ConsolAdjustmentRepository interface {
	// FindByID finds an adjustment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*ConsolAdjustment, error)

	// FindPublishedForPeriod returns every published adjustment for an org
	// and period, all versions included
	FindPublishedForPeriod(ctx context.Context, orgID uuid.UUID, period string) ([]*ConsolAdjustment, error)

	// FindAllForOrg returns adjustments matching the filter
	FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter AdjustmentFilter) ([]*ConsolAdjustment, error)

	// MaxVersion returns the highest version recorded for a logical key, 0
	// when none exists
	MaxVersion(ctx context.Context, orgID uuid.UUID, orgUnitID *uuid.UUID, period, metric string) (int, error)

	// Save creates or updates an adjustment
	Save(ctx context.Context, adjustment *ConsolAdjustment) error
}

// FxRateRepository defines the interface for FX rate persistence. Rates are
// immutable once recorded.
type FxRateRepository interface {
	FxRateLookup

	// FindExact finds the rate recorded for a pair on a specific day
	FindExact(ctx context.Context, base, quote valueobject.Currency, day time.Time) (*FxRate, error)

	// FindAllForPair returns a pair's rates, most recent first
	FindAllForPair(ctx context.Context, base, quote valueobject.Currency, limit int) ([]*FxRate, error)

	// Save records a new rate; recording a duplicate (day, base, quote) fails
	Save(ctx context.Context, rate *FxRate) error
}

// FactFilter defines filtering options for fact queries.
type FactFilter struct {
	shared.Filter
	OrgUnitID  *uuid.UUID
	Metric     *string
	PeriodFrom *string
	PeriodTo   *string
	RunID      *uuid.UUID
}

// ConsolFactRepository defines the read interface over committed facts used
// by downstream reporting. Writes go through the RunCommitter only.
type ConsolFactRepository interface {
	// FindAllForOrg returns facts matching the filter
	FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter FactFilter) ([]*ConsolFact, error)

	// FindByRunID returns the facts a run committed
	FindByRunID(ctx context.Context, runID uuid.UUID) ([]*ConsolFact, error)

	// FindByKey returns the current fact for a unique key, if any
	FindByKey(ctx context.Context, orgID, orgUnitID uuid.UUID, period, metric string) (*ConsolFact, error)
}

// RunFilter defines filtering options for run queries.
type RunFilter struct {
	shared.Filter
	Period *string
	Status *RunStatus
}

// ConsolRunRepository defines the interface for run persistence.
type ConsolRunRepository interface {
	// FindByID finds a run by ID
	FindByID(ctx context.Context, id uuid.UUID) (*ConsolRun, error)

	// FindAllForOrg returns runs matching the filter, newest first
	FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter RunFilter) ([]*ConsolRun, error)

	// FindActive returns the pending or running run for an org and period,
	// or shared.ErrNotFound
	FindActive(ctx context.Context, orgID uuid.UUID, period string) (*ConsolRun, error)

	// Save creates or updates a run
	Save(ctx context.Context, run *ConsolRun) error
}
