package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/infrastructure/telemetry"
)

func TestNewBusinessMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})

	require.NoError(t, err)
	require.NotNil(t, bm)
}

func TestNewBusinessMetrics_NilMeter(t *testing.T) {
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  nil,
		Logger: zap.NewNop(),
	})

	require.Error(t, err)
	assert.Nil(t, bm)
	assert.Equal(t, "NewBusinessMetrics: meter cannot be nil", err.Error())
}

func TestBusinessMetrics_RecordRun(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	orgID := uuid.New()

	// Should not panic
	bm.RecordRun(ctx, orgID, "COMPLETED", consolidation.RunStats{
		UnitsProcessed:         4,
		TenantsProcessed:       3,
		MetricsProcessed:       2,
		ContributionsCollected: 6,
		EliminationsApplied:    1,
		AdjustmentsApplied:     1,
		FactsWritten:           8,
		TotalDuration:          2 * time.Second,
	})
	bm.RecordRun(ctx, orgID, "FAILED", consolidation.RunStats{})
}

func TestBusinessMetrics_RecordHierarchyShape(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	ctx := context.Background()
	orgID := uuid.New()

	// Should not panic
	bm.RecordHierarchyShape(ctx, orgID, 12, 4)
	bm.RecordHierarchyShape(ctx, orgID, 13, 5)
}

// Mock implementations for testing periodic collection

type mockOrgProvider struct {
	orgIDs []uuid.UUID
	err    error
}

func (m *mockOrgProvider) GetActiveOrgIDs(ctx context.Context) ([]uuid.UUID, error) {
	return m.orgIDs, m.err
}

type mockHierarchyProvider struct {
	unitCount int64
	maxDepth  int64
	err       error
}

func (m *mockHierarchyProvider) GetUnitCount(ctx context.Context, orgID uuid.UUID) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.unitCount, nil
}

func (m *mockHierarchyProvider) GetMaxDepth(ctx context.Context, orgID uuid.UUID) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.maxDepth, nil
}

func TestBusinessMetrics_PeriodicCollection(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	orgID := uuid.New()

	hierarchyProvider := &mockHierarchyProvider{
		unitCount: 10,
		maxDepth:  3,
	}

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:             meter,
		Logger:            zap.NewNop(),
		HierarchyProvider: hierarchyProvider,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orgProvider := &mockOrgProvider{
		orgIDs: []uuid.UUID{orgID},
	}

	// Start periodic collection with short interval for testing
	bm.StartPeriodicCollection(ctx, orgProvider, 100*time.Millisecond)

	// Wait for at least one collection cycle
	time.Sleep(150 * time.Millisecond)

	// Stop collection
	bm.Stop()

	// Should complete without error
}

func TestBusinessMetrics_PeriodicCollection_NoProvider(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
		// No hierarchy provider
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orgProvider := &mockOrgProvider{
		orgIDs: []uuid.UUID{uuid.New()},
	}

	// Should not panic with no hierarchy provider
	bm.StartPeriodicCollection(ctx, orgProvider, 50*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	bm.Stop()
}

func TestBusinessMetrics_Stop_Idempotent(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter: meter,
	})
	require.NoError(t, err)

	// Calling Stop multiple times should not panic
	bm.Stop()
	bm.Stop()
	bm.Stop()
}

func TestBusinessMetrics_StartPeriodicCollection_OnlyOnce(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	bm, err := telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orgProvider := &mockOrgProvider{
		orgIDs: []uuid.UUID{},
	}

	// Calling StartPeriodicCollection multiple times should only start once
	bm.StartPeriodicCollection(ctx, orgProvider, time.Hour)
	bm.StartPeriodicCollection(ctx, orgProvider, time.Minute)
	bm.StartPeriodicCollection(ctx, orgProvider, time.Second)

	bm.Stop()
}

func TestMetricsError_Error(t *testing.T) {
	err := &telemetry.MetricsError{
		Op:  "TestOperation",
		Err: "test error message",
	}

	assert.Equal(t, "TestOperation: test error message", err.Error())
}
