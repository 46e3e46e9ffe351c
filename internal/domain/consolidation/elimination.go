package consolidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EliminationRuleType discriminates the closed set of rule variants.
type EliminationRuleType string

const (
	RuleTypeEventSource EliminationRuleType = "EVENT_SOURCE"
	RuleTypeTenantPair  EliminationRuleType = "TENANT_PAIR"
	RuleTypeManual      EliminationRuleType = "MANUAL"
	RuleTypeTagBased    EliminationRuleType = "TAG_BASED"
)

// IsValid checks if the rule type is a known variant.
func (t EliminationRuleType) IsValid() bool {
	switch t {
	case RuleTypeEventSource, RuleTypeTenantPair, RuleTypeManual, RuleTypeTagBased:
		return true
	}
	return false
}

// EliminationRule removes intercompany double-counting before rollup. Each
// type carries only the fields it needs and is validated at construction, so
// match time never interprets free-form patterns. Deactivated rules are
// excluded from future runs but never alter past facts.
type EliminationRule struct {
	shared.BaseEntity
	OrgID    uuid.UUID
	RuleType EliminationRuleType
	Name     string
	Active   bool

	// EVENT_SOURCE: source tag pattern, exact or with a single trailing '*'.
	SourcePattern string

	// TENANT_PAIR: the two tenants whose paired amounts cancel, per metric.
	TenantA    *uuid.UUID
	TenantB    *uuid.UUID
	PairMetric string

	// MANUAL: fixed amount removed for one tenant and metric.
	TenantID *uuid.UUID
	Metric   string
	Amount   decimal.Decimal

	// TAG_BASED: contributions carrying any of these tags are removed.
	Tags []string
}

// NewEventSourceRule removes contributions whose source tag matches pattern.
func NewEventSourceRule(orgID uuid.UUID, name, pattern string) (*EliminationRule, error) {
	if pattern == "" || strings.Count(pattern, "*") > 1 || (strings.Contains(pattern, "*") && !strings.HasSuffix(pattern, "*")) {
		return nil, ErrEliminationRuleInvalid
	}
	return &EliminationRule{
		BaseEntity:    shared.NewBaseEntity(),
		OrgID:         orgID,
		RuleType:      RuleTypeEventSource,
		Name:          name,
		Active:        true,
		SourcePattern: pattern,
	}, nil
}

// NewTenantPairRule cancels the matched amount between two tenants for a
// metric.
func NewTenantPairRule(orgID uuid.UUID, name string, tenantA, tenantB uuid.UUID, metric string) (*EliminationRule, error) {
	if tenantA == uuid.Nil || tenantB == uuid.Nil || tenantA == tenantB || metric == "" {
		return nil, ErrEliminationRuleInvalid
	}
	return &EliminationRule{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		RuleType:   RuleTypeTenantPair,
		Name:       name,
		Active:     true,
		TenantA:    &tenantA,
		TenantB:    &tenantB,
		PairMetric: metric,
	}, nil
}

// NewManualEliminationRule removes a fixed base-currency amount for a tenant
// and metric, independent of raw data.
func NewManualEliminationRule(orgID uuid.UUID, name string, tenantID uuid.UUID, metric string, amount decimal.Decimal) (*EliminationRule, error) {
	if tenantID == uuid.Nil || metric == "" || !amount.IsPositive() {
		return nil, ErrEliminationRuleInvalid
	}
	return &EliminationRule{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		RuleType:   RuleTypeManual,
		Name:       name,
		Active:     true,
		TenantID:   &tenantID,
		Metric:     metric,
		Amount:     amount,
	}, nil
}

// NewTagBasedRule removes contributions carrying any tag in the set.
func NewTagBasedRule(orgID uuid.UUID, name string, tags []string) (*EliminationRule, error) {
	if len(tags) == 0 {
		return nil, ErrEliminationRuleInvalid
	}
	for _, t := range tags {
		if t == "" {
			return nil, ErrEliminationRuleInvalid
		}
	}
	return &EliminationRule{
		BaseEntity: shared.NewBaseEntity(),
		OrgID:      orgID,
		RuleType:   RuleTypeTagBased,
		Name:       name,
		Active:     true,
		Tags:       tags,
	}, nil
}

// Deactivate excludes the rule from future runs.
func (r *EliminationRule) Deactivate() {
	r.Active = false
	r.UpdatedAt = time.Now()
}

// matchesSource checks the EVENT_SOURCE pattern against a source tag.
func (r *EliminationRule) matchesSource(tag string) bool {
	if strings.HasSuffix(r.SourcePattern, "*") {
		return strings.HasPrefix(tag, strings.TrimSuffix(r.SourcePattern, "*"))
	}
	return tag == r.SourcePattern
}

// EliminationMatch records one applied elimination for the run audit trail.
type EliminationMatch struct {
	RuleID    uuid.UUID
	RuleType  EliminationRuleType
	OrgUnitID uuid.UUID
	TenantID  uuid.UUID
	Metric    string
	Amount    decimal.Decimal
	Reason    string
}

// EliminationEngine applies active rules to converted contributions. Rules
// run in creation order and a contribution is eliminated by at most one rule
// per run: the first that matches wins.
type EliminationEngine struct {
	rules []*EliminationRule
}

// NewEliminationEngine creates an engine over the org's active rules. The
// caller supplies them in creation order.
func NewEliminationEngine(rules []*EliminationRule) *EliminationEngine {
	active := make([]*EliminationRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return &EliminationEngine{rules: active}
}

// Apply mutates the contributions' elimination fields in place and returns
// the matches produced.
func (e *EliminationEngine) Apply(contributions []TenantContribution) []EliminationMatch {
	matches := make([]EliminationMatch, 0)
	for _, rule := range e.rules {
		switch rule.RuleType {
		case RuleTypeEventSource:
			matches = append(matches, e.applySimple(rule, contributions, func(c *TenantContribution) bool {
				return c.SourceTag != "" && rule.matchesSource(c.SourceTag)
			}, "source tag matches "+rule.SourcePattern)...)
		case RuleTypeTagBased:
			matches = append(matches, e.applySimple(rule, contributions, func(c *TenantContribution) bool {
				for _, t := range rule.Tags {
					if c.HasTag(t) {
						return true
					}
				}
				return false
			}, "tagged for elimination")...)
		case RuleTypeManual:
			matches = append(matches, e.applyManual(rule, contributions)...)
		case RuleTypeTenantPair:
			matches = append(matches, e.applyTenantPair(rule, contributions)...)
		}
	}
	return matches
}

// applySimple removes the full base value of every untouched contribution
// the predicate selects.
func (e *EliminationEngine) applySimple(rule *EliminationRule, contributions []TenantContribution, match func(*TenantContribution) bool, reason string) []EliminationMatch {
	out := make([]EliminationMatch, 0)
	for i := range contributions {
		c := &contributions[i]
		if c.EliminatedBy != nil || !match(c) {
			continue
		}
		out = append(out, e.eliminate(rule, c, c.BaseValue, reason))
	}
	return out
}

// applyManual spreads the rule's fixed amount over the tenant's
// contributions for the metric, in order, never exceeding what each
// contribution holds.
func (e *EliminationEngine) applyManual(rule *EliminationRule, contributions []TenantContribution) []EliminationMatch {
	out := make([]EliminationMatch, 0)
	remaining := rule.Amount
	for i := range contributions {
		c := &contributions[i]
		if c.EliminatedBy != nil || c.TenantID != *rule.TenantID || c.Metric != rule.Metric {
			continue
		}
		if !remaining.IsPositive() {
			break
		}
		amount := decimal.Min(remaining, c.BaseValue)
		if !amount.IsPositive() {
			continue
		}
		remaining = remaining.Sub(amount)
		out = append(out, e.eliminate(rule, c, amount, "manual elimination"))
	}
	return out
}

// applyTenantPair cancels the overlapping amount between the two tenants'
// contributions for the pair metric. The cancelled amount is the smaller of
// the two sides' totals, removed proportionally from each side.
func (e *EliminationEngine) applyTenantPair(rule *EliminationRule, contributions []TenantContribution) []EliminationMatch {
	sideA := make([]*TenantContribution, 0)
	sideB := make([]*TenantContribution, 0)
	totalA := decimal.Zero
	totalB := decimal.Zero
	for i := range contributions {
		c := &contributions[i]
		if c.EliminatedBy != nil || c.Metric != rule.PairMetric {
			continue
		}
		switch c.TenantID {
		case *rule.TenantA:
			sideA = append(sideA, c)
			totalA = totalA.Add(c.BaseValue)
		case *rule.TenantB:
			sideB = append(sideB, c)
			totalB = totalB.Add(c.BaseValue)
		}
	}

	matched := decimal.Min(totalA.Abs(), totalB.Abs())
	if !matched.IsPositive() {
		return nil
	}

	out := make([]EliminationMatch, 0, len(sideA)+len(sideB))
	out = append(out, e.cancelSide(rule, sideA, totalA, matched)...)
	out = append(out, e.cancelSide(rule, sideB, totalB, matched)...)
	return out
}

func (e *EliminationEngine) cancelSide(rule *EliminationRule, side []*TenantContribution, total, matched decimal.Decimal) []EliminationMatch {
	out := make([]EliminationMatch, 0, len(side))
	if total.IsZero() {
		return out
	}
	for _, c := range side {
		share := c.BaseValue.Div(total).Mul(matched)
		out = append(out, e.eliminate(rule, c, share, "intercompany pair cancellation"))
	}
	return out
}

func (e *EliminationEngine) eliminate(rule *EliminationRule, c *TenantContribution, amount decimal.Decimal, reason string) EliminationMatch {
	c.EliminatedAmount = amount
	id := rule.ID
	c.EliminatedBy = &id
	return EliminationMatch{
		RuleID:    rule.ID,
		RuleType:  rule.RuleType,
		OrgUnitID: c.OrgUnitID,
		TenantID:  c.TenantID,
		Metric:    c.Metric,
		Amount:    amount,
		Reason:    fmt.Sprintf("%s: %s", rule.RuleType, reason),
	}
}
