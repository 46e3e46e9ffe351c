// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormHierarchyMetricsProvider implements HierarchyMetricsProvider using GORM.
// It queries the org_units table directly for aggregated metrics.
type GormHierarchyMetricsProvider struct {
	db *gorm.DB
}

// NewGormHierarchyMetricsProvider creates a new GormHierarchyMetricsProvider.
func NewGormHierarchyMetricsProvider(db *gorm.DB) *GormHierarchyMetricsProvider {
	return &GormHierarchyMetricsProvider{db: db}
}

// GetUnitCount returns the number of active org units for an org.
func (p *GormHierarchyMetricsProvider) GetUnitCount(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("org_units").
		Where("org_id = ? AND active = ?", orgID, true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetActiveOrgIDs returns the distinct org IDs that have active org units.
func (p *GormHierarchyMetricsProvider) GetActiveOrgIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("org_units").
		Where("active = ?", true).
		Distinct("org_id").
		Pluck("org_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetMaxDepth returns the deepest root-to-leaf path length for an org.
// Uses a recursive CTE; depth 1 is a lone root.
func (p *GormHierarchyMetricsProvider) GetMaxDepth(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var depth int64
	err := p.db.WithContext(ctx).Raw(`
		WITH RECURSIVE unit_depth AS (
			SELECT id, 1 AS depth
			FROM org_units
			WHERE org_id = ? AND parent_id IS NULL AND active = TRUE
			UNION ALL
			SELECT u.id, d.depth + 1
			FROM org_units u
			JOIN unit_depth d ON u.parent_id = d.id
			WHERE u.org_id = ? AND u.active = TRUE
		)
		SELECT COALESCE(MAX(depth), 0) FROM unit_depth
	`, orgID, orgID).Scan(&depth).Error
	if err != nil {
		return 0, err
	}
	return depth, nil
}
