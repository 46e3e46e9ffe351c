package consolidation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantMetricCollectorCollect(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()
	unitID := uuid.New()
	period := MustParsePeriod("2024-01")

	t.Run("sum metric is weighted by share and full period overlap", func(t *testing.T) {
		tenant := uuid.New()
		source := newFakeMetricSource()
		source.set(tenant, "volunteer_hours", RawMetricValue{Value: dec(100), Currency: "EUR"})
		member := mustMember(t, orgID, unitID, tenant, 60, "2024-01-01", nil)

		collector := NewTenantMetricCollector(source, testRegistry(t), 4)
		got, err := collector.Collect(ctx, []*OrgUnitMember{member}, []string{"volunteer_hours"}, period)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Value.Equal(dec(60)), "got %s", got[0].Value)
		assert.True(t, got[0].RawValue.Equal(dec(100)))
		assert.True(t, got[0].Weight.Equal(dec(0.6)))
	})

	t.Run("partial period overlap scales the contribution", func(t *testing.T) {
		tenant := uuid.New()
		source := newFakeMetricSource()
		source.set(tenant, "volunteer_hours", RawMetricValue{Value: dec(310), Currency: "EUR"})
		// Joined mid-month: 16 of 31 days.
		member := mustMember(t, orgID, unitID, tenant, 100, "2024-01-16", nil)

		collector := NewTenantMetricCollector(source, testRegistry(t), 4)
		got, err := collector.Collect(ctx, []*OrgUnitMember{member}, []string{"volunteer_hours"}, period)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Value.Equal(dec(160)), "310 * 16/31 = 160, got %s", got[0].Value)
	})

	t.Run("avg metric carries the raw value with its weight", func(t *testing.T) {
		tenant := uuid.New()
		source := newFakeMetricSource()
		source.set(tenant, "impact_ratio", RawMetricValue{Value: dec(0.8), Currency: "EUR"})
		member := mustMember(t, orgID, unitID, tenant, 50, "2024-01-01", nil)

		collector := NewTenantMetricCollector(source, testRegistry(t), 4)
		got, err := collector.Collect(ctx, []*OrgUnitMember{member}, []string{"impact_ratio"}, period)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Value.Equal(dec(0.8)), "avg value must not be pre-weighted")
		assert.True(t, got[0].Weight.Equal(dec(0.5)))
	})

	t.Run("memberships outside the period are skipped", func(t *testing.T) {
		tenant := uuid.New()
		source := newFakeMetricSource()
		source.set(tenant, "volunteer_hours", RawMetricValue{Value: dec(100), Currency: "EUR"})
		end := "2023-12-01"
		member := mustMember(t, orgID, unitID, tenant, 100, "2023-01-01", &end)

		collector := NewTenantMetricCollector(source, testRegistry(t), 4)
		got, err := collector.Collect(ctx, []*OrgUnitMember{member}, []string{"volunteer_hours"}, period)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 0, source.calls)
	})

	t.Run("tenants with no recorded value are skipped not zeroed", func(t *testing.T) {
		member := mustMember(t, orgID, unitID, uuid.New(), 100, "2024-01-01", nil)
		collector := NewTenantMetricCollector(newFakeMetricSource(), testRegistry(t), 4)
		got, err := collector.Collect(ctx, []*OrgUnitMember{member}, []string{"volunteer_hours"}, period)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("fan out across units produces one contribution each", func(t *testing.T) {
		tenant := uuid.New()
		otherUnit := uuid.New()
		source := newFakeMetricSource()
		source.set(tenant, "volunteer_hours", RawMetricValue{Value: dec(100), Currency: "EUR"})
		m1 := mustMember(t, orgID, unitID, tenant, 60, "2024-01-01", nil)
		m2 := mustMember(t, orgID, otherUnit, tenant, 40, "2024-01-01", nil)

		collector := NewTenantMetricCollector(source, testRegistry(t), 4)
		got, err := collector.Collect(ctx, []*OrgUnitMember{m1, m2}, []string{"volunteer_hours"}, period)
		require.NoError(t, err)
		require.Len(t, got, 2)
		total := got[0].Value.Add(got[1].Value)
		assert.True(t, total.Equal(dec(100)))
	})

	t.Run("corrupted share fails the collection", func(t *testing.T) {
		member := mustMember(t, orgID, unitID, uuid.New(), 100, "2024-01-01", nil)
		member.PercentShare = decimal.NewFromInt(150)

		collector := NewTenantMetricCollector(newFakeMetricSource(), testRegistry(t), 4)
		_, err := collector.Collect(ctx, []*OrgUnitMember{member}, []string{"volunteer_hours"}, period)
		assert.ErrorIs(t, err, ErrInvalidPercentShare)
	})

	t.Run("unknown metric fails the collection", func(t *testing.T) {
		member := mustMember(t, orgID, unitID, uuid.New(), 100, "2024-01-01", nil)
		collector := NewTenantMetricCollector(newFakeMetricSource(), testRegistry(t), 4)
		_, err := collector.Collect(ctx, []*OrgUnitMember{member}, []string{"nope"}, period)
		assert.Error(t, err)
	})

	t.Run("output order is deterministic under parallel fetches", func(t *testing.T) {
		source := newFakeMetricSource()
		members := make([]*OrgUnitMember, 0, 20)
		for i := 0; i < 20; i++ {
			tenant := uuid.New()
			source.set(tenant, "volunteer_hours", RawMetricValue{Value: dec(float64(i)), Currency: "EUR"})
			members = append(members, mustMember(t, orgID, unitID, tenant, 100, "2024-01-01", nil))
		}
		collector := NewTenantMetricCollector(source, testRegistry(t), 8)

		first, err := collector.Collect(ctx, members, []string{"volunteer_hours"}, period)
		require.NoError(t, err)
		second, err := collector.Collect(ctx, members, []string{"volunteer_hours"}, period)
		require.NoError(t, err)
		require.Equal(t, len(first), len(second))
		for i := range first {
			assert.Equal(t, first[i].TenantID, second[i].TenantID)
		}
	})
}
