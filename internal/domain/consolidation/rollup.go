package consolidation

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsolidatedValue is one unit's rolled-up value for a metric. Value is nil
// for averaging metrics with zero weight and for min/max with no data,
// distinguishing "no data" from zero. Sum and count metrics always carry a
// value, zero by default.
type ConsolidatedValue struct {
	OrgUnitID uuid.UUID
	Metric    string
	Value     *decimal.Decimal
	// ValueLocal is the pre-conversion sum of direct local contributions.
	ValueLocal decimal.Decimal
	// FxRate is set when every contribution under this unit resolved the
	// same rate, for fact-level audit; mixed-rate rollups leave it nil.
	FxRate *decimal.Decimal
	// Deltas applied at this unit's own scope.
	EliminatedDelta decimal.Decimal
	AdjustedDelta   decimal.Decimal

	// Internal weighted-average accumulator, carried upward so parents fold
	// children exactly once.
	valueSum  decimal.Decimal
	weightSum decimal.Decimal
}

// RollupAggregator folds contributions bottom-up through the hierarchy with
// the metric's aggregation function. Eliminations are already reflected in
// the contributions; adjustments are applied here, once, at the unit whose
// scope they target.
type RollupAggregator struct {
	graph    *HierarchyGraph
	registry *MetricRegistry
}

// NewRollupAggregator creates an aggregator over a validated hierarchy.
func NewRollupAggregator(graph *HierarchyGraph, registry *MetricRegistry) *RollupAggregator {
	return &RollupAggregator{graph: graph, registry: registry}
}

// Rollup processes the scope in post-order per metric. Metrics never share
// aggregation state, so they fold on separate goroutines.
func (r *RollupAggregator) Rollup(scope []uuid.UUID, metrics []string, contributions []TenantContribution, applier *AdjustmentApplier) ([]ConsolidatedValue, []AdjustmentApplication) {
	order := r.graph.PostOrder(scope)

	type metricResult struct {
		values       []ConsolidatedValue
		applications []AdjustmentApplication
	}
	results := make([]metricResult, len(metrics))

	var wg sync.WaitGroup
	for mi, metric := range metrics {
		wg.Add(1)
		go func(mi int, metric string) {
			defer wg.Done()
			values, apps := r.rollupMetric(order, metric, contributions, applier)
			results[mi] = metricResult{values: values, applications: apps}
		}(mi, metric)
	}
	wg.Wait()

	values := make([]ConsolidatedValue, 0, len(order)*len(metrics))
	applications := make([]AdjustmentApplication, 0)
	for _, res := range results {
		values = append(values, res.values...)
		applications = append(applications, res.applications...)
	}
	return values, applications
}

func (r *RollupAggregator) rollupMetric(order []uuid.UUID, metric string, contributions []TenantContribution, applier *AdjustmentApplier) ([]ConsolidatedValue, []AdjustmentApplication) {
	def, ok := r.registry.Get(metric)
	if !ok {
		return nil, nil
	}

	byUnit := make(map[uuid.UUID][]*TenantContribution)
	for i := range contributions {
		c := &contributions[i]
		if c.Metric == metric {
			byUnit[c.OrgUnitID] = append(byUnit[c.OrgUnitID], c)
		}
	}

	consolidated := make(map[uuid.UUID]*ConsolidatedValue, len(order))
	applications := make([]AdjustmentApplication, 0)
	inOrder := make([]ConsolidatedValue, 0, len(order))

	// Org-level adjustments attach to the first root of the scope so they
	// are counted exactly once across the forest.
	orgLevelTarget := r.firstRoot(order)

	for _, unitID := range order {
		cv := r.foldUnit(unitID, def, byUnit[unitID], consolidated)

		// Unit-scoped adjustment, applied at this unit only.
		uid := unitID
		if adjusted, app := r.applyAdjustment(applier, &uid, def, cv); app != nil {
			applications = append(applications, *app)
			cv = adjusted
		}
		if orgLevelTarget != nil && unitID == *orgLevelTarget {
			if adjusted, app := r.applyAdjustment(applier, nil, def, cv); app != nil {
				applications = append(applications, *app)
				cv = adjusted
			}
		}

		consolidated[unitID] = cv
		inOrder = append(inOrder, *cv)
	}
	return inOrder, applications
}

// foldUnit combines a unit's direct contributions with its children's
// already-consolidated values.
func (r *RollupAggregator) foldUnit(unitID uuid.UUID, def MetricDefinition, direct []*TenantContribution, consolidated map[uuid.UUID]*ConsolidatedValue) *ConsolidatedValue {
	cv := &ConsolidatedValue{OrgUnitID: unitID, Metric: def.Key}
	children := make([]*ConsolidatedValue, 0)
	for _, childID := range r.graph.Children(unitID) {
		if child, ok := consolidated[childID]; ok {
			children = append(children, child)
		}
	}

	for _, c := range direct {
		cv.ValueLocal = cv.ValueLocal.Add(c.Value)
		cv.EliminatedDelta = cv.EliminatedDelta.Add(c.EliminatedAmount)
	}
	cv.FxRate = uniformRate(direct, children)

	switch def.Aggregation {
	case AggregationSum, AggregationCount:
		total := decimal.Zero
		for _, c := range direct {
			total = total.Add(c.EffectiveBase())
		}
		for _, child := range children {
			if child.Value != nil {
				total = total.Add(*child.Value)
			}
		}
		cv.Value = &total

	case AggregationAvg:
		for _, c := range direct {
			if c.EliminatedBy != nil {
				continue
			}
			cv.valueSum = cv.valueSum.Add(c.BaseValue.Mul(c.Weight))
			cv.weightSum = cv.weightSum.Add(c.Weight)
		}
		for _, child := range children {
			cv.valueSum = cv.valueSum.Add(child.valueSum)
			cv.weightSum = cv.weightSum.Add(child.weightSum)
		}
		if cv.weightSum.IsPositive() {
			v := cv.valueSum.Div(cv.weightSum)
			cv.Value = &v
		}

	case AggregationMin, AggregationMax:
		var best *decimal.Decimal
		reduce := func(v decimal.Decimal) {
			if best == nil {
				best = &v
				return
			}
			if def.Aggregation == AggregationMin && v.LessThan(*best) {
				best = &v
			}
			if def.Aggregation == AggregationMax && v.GreaterThan(*best) {
				best = &v
			}
		}
		for _, c := range direct {
			if c.EliminatedBy == nil {
				reduce(c.BaseValue)
			}
		}
		for _, child := range children {
			if child.Value != nil {
				reduce(*child.Value)
			}
		}
		cv.Value = best
	}

	if cv.Value != nil {
		rounded := cv.Value.Round(def.Decimals)
		cv.Value = &rounded
	}
	return cv
}

// applyAdjustment applies the active adjustment for (unit, metric) to the
// consolidated value, treating a nil value as zero when an adjustment lands
// on a unit with no data.
func (r *RollupAggregator) applyAdjustment(applier *AdjustmentApplier, orgUnitID *uuid.UUID, def MetricDefinition, cv *ConsolidatedValue) (*ConsolidatedValue, *AdjustmentApplication) {
	if applier == nil {
		return cv, nil
	}
	base := decimal.Zero
	if cv.Value != nil {
		base = *cv.Value
	}
	adjusted, app := applier.Apply(orgUnitID, def.Key, base)
	if app == nil {
		return cv, nil
	}
	rounded := adjusted.Round(def.Decimals)
	cv.Value = &rounded
	cv.AdjustedDelta = cv.AdjustedDelta.Add(app.Amount)
	// Fold the shift into the weighted-average accumulator so a parent
	// averaging over this unit sees the adjusted value. With zero weight
	// there is nothing to carry; the adjustment stays at this unit's scope.
	if def.Aggregation == AggregationAvg && cv.weightSum.IsPositive() {
		cv.valueSum = adjusted.Mul(cv.weightSum)
	}
	return cv, app
}

func (r *RollupAggregator) firstRoot(order []uuid.UUID) *uuid.UUID {
	for _, id := range order {
		if u, ok := r.graph.Unit(id); ok && u.IsRoot() {
			return &id
		}
	}
	if len(order) > 0 {
		last := order[len(order)-1]
		return &last
	}
	return nil
}

// uniformRate returns the single FX rate shared by every contribution and
// child in the fold, or nil when rates are mixed or absent.
func uniformRate(direct []*TenantContribution, children []*ConsolidatedValue) *decimal.Decimal {
	var rate *decimal.Decimal
	consider := func(r *decimal.Decimal) bool {
		if r == nil {
			return false
		}
		if rate == nil {
			rate = r
			return true
		}
		return rate.Equal(*r)
	}
	for _, c := range direct {
		r := c.FxRate
		if !consider(&r) {
			return nil
		}
	}
	for _, child := range children {
		if child.FxRate == nil {
			continue
		}
		if !consider(child.FxRate) {
			return nil
		}
	}
	return rate
}
