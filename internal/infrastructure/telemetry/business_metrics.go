// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rollup/backend/internal/domain/consolidation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics provides business metrics for the consolidation engine.
// It tracks run outcomes, pipeline throughput, and hierarchy health.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	runTotal                 *Counter
	factsWrittenTotal        *Counter
	contributionsTotal       *Counter
	eliminationsAppliedTotal *Counter
	adjustmentsAppliedTotal  *Counter

	// Histogram metrics
	runDuration *Histogram

	// Gauge metrics (point-in-time values)
	hierarchyUnitCount  *Gauge
	hierarchyDepthGauge *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	hierarchyProvider HierarchyMetricsProvider
}

// HierarchyMetricsProvider provides hierarchy data for periodic metrics
// collection. This interface lets the telemetry layer query hierarchy shape
// without depending on the consolidation repositories directly.
type HierarchyMetricsProvider interface {
	// GetUnitCount returns the number of active org units for an org.
	GetUnitCount(ctx context.Context, orgID uuid.UUID) (int64, error)

	// GetMaxDepth returns the deepest root-to-leaf path length for an org.
	GetMaxDepth(ctx context.Context, orgID uuid.UUID) (int64, error)
}

// BusinessMetricsConfig holds configuration for business metrics.
type BusinessMetricsConfig struct {
	Meter             metric.Meter
	Logger            *zap.Logger
	CollectInterval   time.Duration // Default: 5 minutes
	HierarchyProvider HierarchyMetricsProvider
}

// NewBusinessMetrics creates a new BusinessMetrics instance.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BusinessMetrics{
		meter:             cfg.Meter,
		logger:            logger,
		stopChan:          make(chan struct{}),
		hierarchyProvider: cfg.HierarchyProvider,
	}

	var err error

	// Run metrics
	bm.runTotal, err = NewCounter(
		cfg.Meter,
		"rollup_consolidation_run_total",
		"Total number of consolidation runs by terminal status",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	bm.factsWrittenTotal, err = NewCounter(
		cfg.Meter,
		"rollup_consolidation_facts_written_total",
		"Total number of consolidated facts committed",
		"{facts}",
	)
	if err != nil {
		return nil, err
	}

	bm.contributionsTotal, err = NewCounter(
		cfg.Meter,
		"rollup_consolidation_contributions_total",
		"Total number of tenant contributions collected",
		"{contributions}",
	)
	if err != nil {
		return nil, err
	}

	bm.eliminationsAppliedTotal, err = NewCounter(
		cfg.Meter,
		"rollup_consolidation_eliminations_applied_total",
		"Total number of elimination rule applications",
		"{eliminations}",
	)
	if err != nil {
		return nil, err
	}

	bm.adjustmentsAppliedTotal, err = NewCounter(
		cfg.Meter,
		"rollup_consolidation_adjustments_applied_total",
		"Total number of adjustment applications",
		"{adjustments}",
	)
	if err != nil {
		return nil, err
	}

	bm.runDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "rollup_consolidation_run_duration_seconds",
		Description: "End-to-end consolidation run duration",
		Unit:        "s",
		Boundaries:  []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})
	if err != nil {
		return nil, err
	}

	// Hierarchy gauge metrics
	bm.hierarchyUnitCount, err = NewGauge(
		cfg.Meter,
		"rollup_hierarchy_unit_count",
		"Number of active org units",
		"{units}",
	)
	if err != nil {
		return nil, err
	}

	bm.hierarchyDepthGauge, err = NewGauge(
		cfg.Meter,
		"rollup_hierarchy_max_depth",
		"Deepest root-to-leaf path in the hierarchy",
		"{levels}",
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Run Metrics
// =============================================================================

// RecordRun records a finished consolidation run with its terminal status and
// pipeline stats. Called from the application layer after the runner returns.
func (bm *BusinessMetrics) RecordRun(ctx context.Context, orgID uuid.UUID, status string, stats consolidation.RunStats) {
	attrs := []attribute.KeyValue{
		AttrOrgID.String(orgID.String()),
		AttrRunStatus.String(status),
	}

	bm.runTotal.Inc(ctx, attrs...)
	bm.runDuration.RecordDuration(ctx, stats.TotalDuration, attrs...)

	orgAttr := AttrOrgID.String(orgID.String())
	bm.factsWrittenTotal.Add(ctx, int64(stats.FactsWritten), orgAttr)
	bm.contributionsTotal.Add(ctx, int64(stats.ContributionsCollected), orgAttr)
	bm.eliminationsAppliedTotal.Add(ctx, int64(stats.EliminationsApplied), orgAttr)
	bm.adjustmentsAppliedTotal.Add(ctx, int64(stats.AdjustmentsApplied), orgAttr)
}

// =============================================================================
// Hierarchy Metrics
// =============================================================================

// RecordHierarchyShape records the current unit count and max depth for an org.
// Gauge metrics, updated periodically.
func (bm *BusinessMetrics) RecordHierarchyShape(ctx context.Context, orgID uuid.UUID, unitCount, maxDepth int64) {
	orgAttr := AttrOrgID.String(orgID.String())
	bm.hierarchyUnitCount.Record(ctx, unitCount, orgAttr)
	bm.hierarchyDepthGauge.Record(ctx, maxDepth, orgAttr)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// OrgProvider provides org IDs for periodic metrics collection.
type OrgProvider interface {
	GetActiveOrgIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It collects hierarchy metrics every interval (default: 5 minutes).
// This is non-blocking - use Stop() to stop collection.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, orgProvider OrgProvider, interval time.Duration) {
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go bm.runPeriodicCollection(ctx, orgProvider, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, orgProvider OrgProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	bm.collectHierarchyMetrics(ctx, orgProvider)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic business metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic business metrics collection")
			return
		case <-ticker.C:
			bm.collectHierarchyMetrics(ctx, orgProvider)
		}
	}
}

// collectHierarchyMetrics collects hierarchy gauge metrics for all orgs.
func (bm *BusinessMetrics) collectHierarchyMetrics(ctx context.Context, orgProvider OrgProvider) {
	if bm.hierarchyProvider == nil {
		bm.logger.Debug("No hierarchy provider configured, skipping hierarchy metrics collection")
		return
	}

	orgIDs, err := orgProvider.GetActiveOrgIDs(ctx)
	if err != nil {
		bm.logger.Error("Failed to get org IDs for metrics collection", zap.Error(err))
		return
	}

	for _, orgID := range orgIDs {
		bm.collectOrgHierarchyMetrics(ctx, orgID)
	}
}

// collectOrgHierarchyMetrics collects hierarchy metrics for a single org.
func (bm *BusinessMetrics) collectOrgHierarchyMetrics(ctx context.Context, orgID uuid.UUID) {
	unitCount, err := bm.hierarchyProvider.GetUnitCount(ctx, orgID)
	if err != nil {
		bm.logger.Warn("Failed to get unit count for org",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
		return
	}

	maxDepth, err := bm.hierarchyProvider.GetMaxDepth(ctx, orgID)
	if err != nil {
		bm.logger.Warn("Failed to get hierarchy depth for org",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
		return
	}

	bm.RecordHierarchyShape(ctx, orgID, unitCount, maxDepth)
}

// Stop stops the periodic collection.
func (bm *BusinessMetrics) Stop() {
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBusinessMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
