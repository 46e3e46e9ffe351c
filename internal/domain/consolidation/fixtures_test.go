package consolidation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *MetricRegistry {
	t.Helper()
	r, err := NewMetricRegistry([]MetricDefinition{
		{Key: "volunteer_hours", Name: "Volunteer Hours", Aggregation: AggregationSum, Decimals: 2, Unit: "h"},
		{Key: "impact_ratio", Name: "Impact Ratio", Aggregation: AggregationAvg, Decimals: 4},
		{Key: "donations", Name: "Donations", Aggregation: AggregationSum, Decimals: 2, Unit: "EUR", RequiredComplete: true},
		{Key: "peak_headcount", Name: "Peak Headcount", Aggregation: AggregationMax, Decimals: 0},
	})
	require.NoError(t, err)
	return r
}

func mustUnit(t *testing.T, orgID uuid.UUID, parent *uuid.UUID, name, code string) *OrgUnit {
	t.Helper()
	u, err := NewOrgUnit(orgID, parent, name, code)
	require.NoError(t, err)
	return u
}

func mustMember(t *testing.T, orgID, unitID, tenantID uuid.UUID, share float64, start string, end *string) *OrgUnitMember {
	t.Helper()
	startDate, err := time.Parse("2006-01-02", start)
	require.NoError(t, err)
	var endDate *time.Time
	if end != nil {
		e, err := time.Parse("2006-01-02", *end)
		require.NoError(t, err)
		endDate = &e
	}
	m, err := NewOrgUnitMember(orgID, unitID, tenantID, decimal.NewFromFloat(share), startDate, endDate)
	require.NoError(t, err)
	return m
}

// fakeMetricSource serves raw values from a map keyed "tenant|metric".
type fakeMetricSource struct {
	mu     sync.Mutex
	values map[string]RawMetricValue
	calls  int
}

func newFakeMetricSource() *fakeMetricSource {
	return &fakeMetricSource{values: make(map[string]RawMetricValue)}
}

func (s *fakeMetricSource) set(tenantID uuid.UUID, metric string, v RawMetricValue) {
	s.values[fmt.Sprintf("%s|%s", tenantID, metric)] = v
}

func (s *fakeMetricSource) GetTenantMetric(_ context.Context, tenantID uuid.UUID, metric string, _ Period) (RawMetricValue, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	v, ok := s.values[fmt.Sprintf("%s|%s", tenantID, metric)]
	if !ok {
		return RawMetricValue{}, shared.ErrNotFound
	}
	return v, nil
}

// fakeFxLookup resolves from a recorded rate list the way the repository
// does: most recent on or before the requested day.
type fakeFxLookup struct {
	rates []*FxRate
}

func (f *fakeFxLookup) add(t *testing.T, day string, base, quote valueobject.Currency, rate float64) {
	t.Helper()
	d, err := time.Parse("2006-01-02", day)
	require.NoError(t, err)
	r, err := NewFxRate(d, base, quote, decimal.NewFromFloat(rate))
	require.NoError(t, err)
	f.rates = append(f.rates, r)
}

func (f *fakeFxLookup) FindOnOrBefore(_ context.Context, base, quote valueobject.Currency, day time.Time) (*FxRate, error) {
	var best *FxRate
	for _, r := range f.rates {
		if r.Base != base || r.Quote != quote || r.Day.After(day) {
			continue
		}
		if best == nil || r.Day.After(best.Day) {
			best = r
		}
	}
	if best == nil {
		return nil, shared.ErrNotFound
	}
	return best, nil
}

// memCommitter records run saves and committed facts in memory.
type memCommitter struct {
	mu        sync.Mutex
	saves     []RunStatus
	committed []*ConsolFact
	commitErr error
}

func (c *memCommitter) SaveRun(_ context.Context, run *ConsolRun) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = append(c.saves, run.Status)
	return nil
}

func (c *memCommitter) CommitCompleted(_ context.Context, run *ConsolRun, facts []*ConsolFact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return c.commitErr
	}
	c.saves = append(c.saves, run.Status)
	c.committed = facts
	return nil
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
