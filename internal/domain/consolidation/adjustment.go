package consolidation

import (
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsolAdjustment is an audited manual correction to a consolidated value.
// Adjustments are versioned per logical key; only the highest-versioned
// published adjustment for a (org, orgUnit, period, metric) key is ever
// applied, and unpublished drafts never affect a run.
type ConsolAdjustment struct {
	shared.BaseEntity
	OrgID  uuid.UUID
	Period string
	Metric string
	// OrgUnitID is nil for org-level adjustments.
	OrgUnitID   *uuid.UUID
	AmountLocal decimal.Decimal
	AmountBase  decimal.Decimal
	Currency    valueobject.Currency
	Note        string
	Version     int
	Published   bool
	PublishedAt *time.Time
	PublishedBy *uuid.UUID
}

// NewConsolAdjustment creates a version-1 draft. The note is mandatory:
// every manual correction must explain itself.
func NewConsolAdjustment(orgID uuid.UUID, period Period, metric string, orgUnitID *uuid.UUID, amountLocal, amountBase decimal.Decimal, currency valueobject.Currency, note string) (*ConsolAdjustment, error) {
	if note == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Adjustment note is required")
	}
	if metric == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Adjustment metric is required")
	}
	return &ConsolAdjustment{
		BaseEntity:  shared.NewBaseEntity(),
		OrgID:       orgID,
		Period:      period.Key(),
		Metric:      metric,
		OrgUnitID:   orgUnitID,
		AmountLocal: amountLocal,
		AmountBase:  amountBase,
		Currency:    currency,
		Note:        note,
		Version:     1,
		Published:   false,
	}, nil
}

// NewVersion creates the next draft version of this adjustment with new
// amounts and note. The previous version keeps its published state.
func (a *ConsolAdjustment) NewVersion(amountLocal, amountBase decimal.Decimal, note string) (*ConsolAdjustment, error) {
	if note == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Adjustment note is required")
	}
	next := *a
	next.BaseEntity = shared.NewBaseEntity()
	next.AmountLocal = amountLocal
	next.AmountBase = amountBase
	next.Note = note
	next.Version = a.Version + 1
	next.Published = false
	next.PublishedAt = nil
	next.PublishedBy = nil
	return &next, nil
}

// Publish marks the adjustment active for future runs.
func (a *ConsolAdjustment) Publish(by uuid.UUID) error {
	if a.Published {
		return shared.NewDomainError("INVALID_STATE", "Adjustment is already published")
	}
	now := time.Now()
	a.Published = true
	a.PublishedAt = &now
	a.PublishedBy = &by
	a.UpdatedAt = now
	return nil
}

// KeyMatches reports whether the adjustment targets the given unit (nil for
// org-level) and metric.
func (a *ConsolAdjustment) KeyMatches(orgUnitID *uuid.UUID, metric string) bool {
	if a.Metric != metric {
		return false
	}
	if a.OrgUnitID == nil {
		return orgUnitID == nil
	}
	return orgUnitID != nil && *a.OrgUnitID == *orgUnitID
}

// AdjustmentApplication records one applied adjustment for the audit trail.
type AdjustmentApplication struct {
	AdjustmentID uuid.UUID
	OrgUnitID    *uuid.UUID
	Metric       string
	Amount       decimal.Decimal
	Version      int
	Note         string
}

// AdjustmentApplier resolves the active adjustment per key from a published
// snapshot taken at run start and applies it additively.
type AdjustmentApplier struct {
	// active holds the highest-versioned published adjustment per key.
	active map[string]*ConsolAdjustment
}

// NewAdjustmentApplier indexes the snapshot. Unpublished adjustments are
// ignored; among published ones the highest version per key wins.
func NewAdjustmentApplier(adjustments []*ConsolAdjustment) *AdjustmentApplier {
	applier := &AdjustmentApplier{active: make(map[string]*ConsolAdjustment)}
	for _, a := range adjustments {
		if !a.Published {
			continue
		}
		k := applierKey(a.OrgUnitID, a.Metric)
		if cur, ok := applier.active[k]; !ok || a.Version > cur.Version {
			applier.active[k] = a
		}
	}
	return applier
}

func applierKey(orgUnitID *uuid.UUID, metric string) string {
	if orgUnitID == nil {
		return "org|" + metric
	}
	return orgUnitID.String() + "|" + metric
}

// Resolve returns the active adjustment for a unit (nil for org-level) and
// metric, if any.
func (ap *AdjustmentApplier) Resolve(orgUnitID *uuid.UUID, metric string) (*ConsolAdjustment, bool) {
	a, ok := ap.active[applierKey(orgUnitID, metric)]
	return a, ok
}

// Apply adds the active adjustment for the key to the given total. It
// returns the adjusted total and the application record, or the total
// unchanged when no published adjustment exists.
func (ap *AdjustmentApplier) Apply(orgUnitID *uuid.UUID, metric string, total decimal.Decimal) (decimal.Decimal, *AdjustmentApplication) {
	a, ok := ap.Resolve(orgUnitID, metric)
	if !ok {
		return total, nil
	}
	return total.Add(a.AmountBase), &AdjustmentApplication{
		AdjustmentID: a.ID,
		OrgUnitID:    a.OrgUnitID,
		Metric:       metric,
		Amount:       a.AmountBase,
		Version:      a.Version,
		Note:         a.Note,
	}
}
