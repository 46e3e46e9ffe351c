package consolidation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawMetricValue is what the external metric source reports for one tenant,
// metric and period.
type RawMetricValue struct {
	Value     decimal.Decimal
	Currency  valueobject.Currency
	SourceTag string
	Tags      []string
}

// MetricSource is the external collaborator that owns raw tenant metrics.
// Implementations return shared.ErrNotFound when the tenant recorded no
// value for the metric and period.
type MetricSource interface {
	GetTenantMetric(ctx context.Context, tenantID uuid.UUID, metric string, period Period) (RawMetricValue, error)
}

// TenantMetricCollector gathers raw per-tenant values for every membership
// in scope and weights them according to the metric's aggregation.
type TenantMetricCollector struct {
	source   MetricSource
	registry *MetricRegistry
	workers  int
}

// NewTenantMetricCollector creates a collector. workers bounds the number of
// concurrent metric fetches; values below 1 run sequentially.
func NewTenantMetricCollector(source MetricSource, registry *MetricRegistry, workers int) *TenantMetricCollector {
	if workers < 1 {
		workers = 1
	}
	return &TenantMetricCollector{source: source, registry: registry, workers: workers}
}

type collectTask struct {
	member *OrgUnitMember
	metric MetricDefinition
}

// Collect fetches one contribution per (membership, metric) pair whose
// interval overlaps the period. Fetches run on a bounded worker pool; each
// worker writes only its own slot, so the result set needs no locking.
// Tenants with no recorded value are skipped, not zeroed.
func (c *TenantMetricCollector) Collect(ctx context.Context, members []*OrgUnitMember, metrics []string, period Period) ([]TenantContribution, error) {
	tasks := make([]collectTask, 0, len(members)*len(metrics))
	for _, m := range members {
		if !m.ActiveDuring(period) {
			continue
		}
		if m.PercentShare.IsNegative() || m.PercentShare.GreaterThan(decimal.NewFromInt(100)) {
			return nil, ErrInvalidPercentShare
		}
		for _, key := range metrics {
			def, ok := c.registry.Get(key)
			if !ok {
				return nil, shared.NewDomainError("INVALID_METRIC", "Unknown metric "+key)
			}
			tasks = append(tasks, collectTask{member: m, metric: def})
		}
	}

	results := make([]*TenantContribution, len(tasks))
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.workers)
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task collectTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}
			results[i], errs[i] = c.collectOne(ctx, task, period)
		}(i, task)
	}
	wg.Wait()

	out := make([]TenantContribution, 0, len(tasks))
	for i := range tasks {
		if errs[i] != nil {
			if errors.Is(errs[i], shared.ErrNotFound) {
				continue
			}
			return nil, errs[i]
		}
		if results[i] != nil {
			out = append(out, *results[i])
		}
	}

	// Deterministic order regardless of worker scheduling.
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].OrgUnitID != out[b].OrgUnitID {
			return out[a].OrgUnitID.String() < out[b].OrgUnitID.String()
		}
		if out[a].TenantID != out[b].TenantID {
			return out[a].TenantID.String() < out[b].TenantID.String()
		}
		return out[a].Metric < out[b].Metric
	})
	return out, nil
}

func (c *TenantMetricCollector) collectOne(ctx context.Context, task collectTask, period Period) (*TenantContribution, error) {
	raw, err := c.source.GetTenantMetric(ctx, task.member.TenantID, task.metric.Key, period)
	if err != nil {
		return nil, err
	}

	overlap := decimal.NewFromInt(int64(period.OverlapDays(task.member.StartDate, task.member.EndDate)))
	periodDays := decimal.NewFromInt(int64(period.Days()))
	denominator := decimal.NewFromInt(100).Mul(periodDays)
	weight := task.member.PercentShare.Mul(overlap).Div(denominator)

	contrib := &TenantContribution{
		OrgUnitID: task.member.OrgUnitID,
		TenantID:  task.member.TenantID,
		MemberID:  task.member.ID,
		Metric:    task.metric.Key,
		RawValue:  raw.Value,
		Weight:    weight,
		Currency:  raw.Currency,
		SourceTag: raw.SourceTag,
		Tags:      raw.Tags,
	}

	// The weighting method follows the metric's aggregation, not the caller:
	// additive metrics are pre-scaled, averaging metrics keep the raw value
	// and fold through a weighted average instead. The division happens
	// last so exactly divisible weightings stay exact.
	if task.metric.Aggregation.IsAdditive() {
		contrib.Value = raw.Value.Mul(task.member.PercentShare).Mul(overlap).Div(denominator)
	} else {
		contrib.Value = raw.Value
	}
	return contrib, nil
}
