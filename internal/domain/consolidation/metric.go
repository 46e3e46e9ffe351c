package consolidation

import "github.com/rollup/backend/internal/domain/shared"

// Aggregation identifies how a metric's contributions fold upward through
// the hierarchy.
type Aggregation string

const (
	AggregationSum   Aggregation = "SUM"
	AggregationAvg   Aggregation = "AVG"
	AggregationCount Aggregation = "COUNT"
	AggregationMin   Aggregation = "MIN"
	AggregationMax   Aggregation = "MAX"
)

// IsValid checks if the aggregation is a known kind.
func (a Aggregation) IsValid() bool {
	switch a {
	case AggregationSum, AggregationAvg, AggregationCount, AggregationMin, AggregationMax:
		return true
	}
	return false
}

// IsAdditive reports whether contributions for this aggregation are
// pre-weighted by share and time overlap at collection. Averaging metrics
// carry their raw value plus a weight instead.
func (a Aggregation) IsAdditive() bool {
	return a == AggregationSum || a == AggregationCount
}

// MetricDefinition describes one consolidatable metric.
type MetricDefinition struct {
	Key         string
	Name        string
	Aggregation Aggregation
	Decimals    int32
	Unit        string
	// RequiredComplete makes a missing FX rate for any contribution fail the
	// whole run instead of degrading that contribution to zero.
	RequiredComplete bool
}

// MetricRegistry resolves metric keys to their definitions. It is injected
// into the collector and aggregator so tests can supply fixtures.
type MetricRegistry struct {
	defs map[string]MetricDefinition
}

// NewMetricRegistry builds a registry from the given definitions. Unknown or
// invalid aggregations are rejected.
func NewMetricRegistry(defs []MetricDefinition) (*MetricRegistry, error) {
	r := &MetricRegistry{defs: make(map[string]MetricDefinition, len(defs))}
	for _, d := range defs {
		if d.Key == "" {
			return nil, shared.NewDomainError("INVALID_METRIC", "Metric key cannot be empty")
		}
		if !d.Aggregation.IsValid() {
			return nil, shared.NewDomainError("INVALID_METRIC", "Metric "+d.Key+" has an unknown aggregation")
		}
		r.defs[d.Key] = d
	}
	return r, nil
}

// Get returns the definition for a metric key.
func (r *MetricRegistry) Get(key string) (MetricDefinition, bool) {
	d, ok := r.defs[key]
	return d, ok
}

// Keys returns all registered metric keys.
func (r *MetricRegistry) Keys() []string {
	keys := make([]string, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, k)
	}
	return keys
}
