package consolidation

import (
	"time"

	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TenantContribution is one tenant's weighted metric value attributed to one
// org unit for the run period. Contributions are immutable once collected;
// conversion and elimination annotate copies of the running set.
type TenantContribution struct {
	OrgUnitID uuid.UUID
	TenantID  uuid.UUID
	MemberID  uuid.UUID
	Metric    string

	// RawValue is the tenant's unweighted metric value as fetched.
	RawValue decimal.Decimal
	// Value is the contribution in its local currency. For additive metrics
	// it is RawValue pre-weighted by share and period overlap; for averaging
	// metrics it equals RawValue and Weight carries the weighting instead.
	Value    decimal.Decimal
	Weight   decimal.Decimal
	Currency valueobject.Currency

	// Source metadata used by elimination matching.
	SourceTag string
	Tags      []string

	// Conversion results, populated by the convert step.
	BaseValue decimal.Decimal
	FxRate    decimal.Decimal
	FxRateDay time.Time

	// Elimination results, populated by the eliminate step.
	EliminatedAmount decimal.Decimal
	EliminatedBy     *uuid.UUID
}

// EffectiveBase returns the contribution's base-currency value net of any
// eliminated amount.
func (c *TenantContribution) EffectiveBase() decimal.Decimal {
	return c.BaseValue.Sub(c.EliminatedAmount)
}

// HasTag reports whether the contribution carries the given tag.
func (c *TenantContribution) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
