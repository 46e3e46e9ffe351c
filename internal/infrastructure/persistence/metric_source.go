package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/infrastructure/persistence/models"
)

// GormMetricSource implements the MetricSource port over the
// tenant_metric_values table. The collector treats shared.ErrNotFound as
// "tenant recorded nothing", so missing rows skip the contribution instead
// of zeroing it.
type GormMetricSource struct {
	db *gorm.DB
}

// NewGormMetricSource creates a new GormMetricSource
func NewGormMetricSource(db *gorm.DB) *GormMetricSource {
	return &GormMetricSource{db: db}
}

// GetTenantMetric returns the raw value a tenant recorded for a metric and
// period, or shared.ErrNotFound.
func (s *GormMetricSource) GetTenantMetric(ctx context.Context, tenantID uuid.UUID, metric string, period consolidation.Period) (consolidation.RawMetricValue, error) {
	var model models.TenantMetricValueModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND metric = ? AND period = ?", tenantID, metric, period.Key()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return consolidation.RawMetricValue{}, shared.ErrNotFound
		}
		return consolidation.RawMetricValue{}, err
	}
	return model.ToDomain(), nil
}

// RecordTenantMetric upserts a tenant's raw value for a metric and period.
// Re-recording before a run replaces the prior value; runs that already
// committed are unaffected.
func (s *GormMetricSource) RecordTenantMetric(ctx context.Context, tenantID uuid.UUID, metric string, period consolidation.Period, raw consolidation.RawMetricValue) error {
	tagsJSON := "[]"
	if len(raw.Tags) > 0 {
		encoded, err := json.Marshal(raw.Tags)
		if err != nil {
			return err
		}
		tagsJSON = string(encoded)
	}

	model := &models.TenantMetricValueModel{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Metric:    metric,
		Period:    period.Key(),
		Value:     raw.Value,
		Currency:  string(raw.Currency),
		SourceTag: raw.SourceTag,
		TagsJSON:  tagsJSON,
		UpdatedAt: time.Now(),
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "metric"}, {Name: "period"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"value", "currency", "source_tag", "tags", "updated_at",
			}),
		}).
		Create(model).Error
}

// Ensure GormMetricSource implements MetricSource
var _ consolidation.MetricSource = (*GormMetricSource)(nil)
