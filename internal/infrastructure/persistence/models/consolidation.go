package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
)

// logger for model conversion errors (silent failures are logged for debugging)
var modelLogger = zap.L().Named("consolidation.models")

// OrgUnitModel is the persistence model for the OrgUnit entity.
type OrgUnitModel struct {
	BaseModel
	OrgID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_org_units_org_code,priority:1"`
	ParentID *uuid.UUID `gorm:"type:uuid;index"`
	Name     string     `gorm:"type:varchar(200);not null"`
	Code     string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_org_units_org_code,priority:2"`
	Currency *string    `gorm:"type:varchar(3)"`
	Active   bool       `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (OrgUnitModel) TableName() string {
	return "org_units"
}

// ToDomain converts the persistence model to a domain OrgUnit entity.
func (m *OrgUnitModel) ToDomain() *consolidation.OrgUnit {
	unit := &consolidation.OrgUnit{
		BaseEntity: m.BaseModel.ToDomain(),
		OrgID:      m.OrgID,
		ParentID:   m.ParentID,
		Name:       m.Name,
		Code:       m.Code,
		Active:     m.Active,
	}
	if m.Currency != nil {
		c := valueobject.Currency(*m.Currency)
		unit.Currency = &c
	}
	return unit
}

// FromDomain populates the persistence model from a domain OrgUnit entity.
func (m *OrgUnitModel) FromDomain(u *consolidation.OrgUnit) {
	m.FromDomainBaseEntity(u.BaseEntity)
	m.OrgID = u.OrgID
	m.ParentID = u.ParentID
	m.Name = u.Name
	m.Code = u.Code
	m.Active = u.Active
	m.Currency = nil
	if u.Currency != nil {
		c := string(*u.Currency)
		m.Currency = &c
	}
}

// OrgUnitModelFromDomain creates a new persistence model from a domain OrgUnit.
func OrgUnitModelFromDomain(u *consolidation.OrgUnit) *OrgUnitModel {
	m := &OrgUnitModel{}
	m.FromDomain(u)
	return m
}

// OrgUnitMemberModel is the persistence model for the OrgUnitMember entity.
type OrgUnitMemberModel struct {
	BaseModel
	OrgID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrgUnitID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	PercentShare decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	StartDate    time.Time       `gorm:"not null"`
	EndDate      *time.Time
}

// TableName returns the table name for GORM
func (OrgUnitMemberModel) TableName() string {
	return "org_unit_members"
}

// ToDomain converts the persistence model to a domain OrgUnitMember entity.
func (m *OrgUnitMemberModel) ToDomain() *consolidation.OrgUnitMember {
	return &consolidation.OrgUnitMember{
		BaseEntity:   m.BaseModel.ToDomain(),
		OrgID:        m.OrgID,
		OrgUnitID:    m.OrgUnitID,
		TenantID:     m.TenantID,
		PercentShare: m.PercentShare,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
	}
}

// FromDomain populates the persistence model from a domain OrgUnitMember entity.
func (m *OrgUnitMemberModel) FromDomain(member *consolidation.OrgUnitMember) {
	m.FromDomainBaseEntity(member.BaseEntity)
	m.OrgID = member.OrgID
	m.OrgUnitID = member.OrgUnitID
	m.TenantID = member.TenantID
	m.PercentShare = member.PercentShare
	m.StartDate = member.StartDate
	m.EndDate = member.EndDate
}

// OrgUnitMemberModelFromDomain creates a new persistence model from a domain OrgUnitMember.
func OrgUnitMemberModelFromDomain(member *consolidation.OrgUnitMember) *OrgUnitMemberModel {
	m := &OrgUnitMemberModel{}
	m.FromDomain(member)
	return m
}

// MetricDefinitionModel is the persistence model for MetricDefinition. The
// domain type is a value object keyed by metric key, so the row carries its
// own identity and org scope.
type MetricDefinitionModel struct {
	ID               uuid.UUID                 `gorm:"type:uuid;primary_key"`
	OrgID            uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_metric_definitions_org_key,priority:1"`
	Key              string                    `gorm:"type:varchar(100);not null;uniqueIndex:idx_metric_definitions_org_key,priority:2"`
	Name             string                    `gorm:"type:varchar(200);not null"`
	Aggregation      consolidation.Aggregation `gorm:"type:varchar(10);not null"`
	Decimals         int32                     `gorm:"not null;default:2"`
	Unit             string                    `gorm:"type:varchar(20)"`
	RequiredComplete bool                      `gorm:"not null;default:false"`
	CreatedAt        time.Time                 `gorm:"not null"`
	UpdatedAt        time.Time                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MetricDefinitionModel) TableName() string {
	return "metric_definitions"
}

// ToDomain converts the persistence model to a domain MetricDefinition.
func (m *MetricDefinitionModel) ToDomain() consolidation.MetricDefinition {
	return consolidation.MetricDefinition{
		Key:              m.Key,
		Name:             m.Name,
		Aggregation:      m.Aggregation,
		Decimals:         m.Decimals,
		Unit:             m.Unit,
		RequiredComplete: m.RequiredComplete,
	}
}

// FromDomain populates the persistence model from a domain MetricDefinition.
func (m *MetricDefinitionModel) FromDomain(orgID uuid.UUID, def consolidation.MetricDefinition) {
	m.OrgID = orgID
	m.Key = def.Key
	m.Name = def.Name
	m.Aggregation = def.Aggregation
	m.Decimals = def.Decimals
	m.Unit = def.Unit
	m.RequiredComplete = def.RequiredComplete
}

// MetricDefinitionModelFromDomain creates a new persistence model from a domain MetricDefinition.
func MetricDefinitionModelFromDomain(orgID uuid.UUID, def consolidation.MetricDefinition) *MetricDefinitionModel {
	m := &MetricDefinitionModel{ID: uuid.New()}
	m.FromDomain(orgID, def)
	return m
}

// FxRateModel is the persistence model for the FxRate entity. The unique
// index enforces one rate per (day, base, quote); rates are never updated.
type FxRateModel struct {
	BaseModel
	Day   time.Time       `gorm:"type:date;not null;uniqueIndex:idx_fx_rates_day_pair,priority:1"`
	Base  string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_fx_rates_day_pair,priority:2"`
	Quote string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_fx_rates_day_pair,priority:3"`
	Rate  decimal.Decimal `gorm:"type:decimal(18,8);not null"`
}

// TableName returns the table name for GORM
func (FxRateModel) TableName() string {
	return "fx_rates"
}

// ToDomain converts the persistence model to a domain FxRate entity.
func (m *FxRateModel) ToDomain() *consolidation.FxRate {
	return &consolidation.FxRate{
		BaseEntity: m.BaseModel.ToDomain(),
		Day:        m.Day,
		Base:       valueobject.Currency(m.Base),
		Quote:      valueobject.Currency(m.Quote),
		Rate:       m.Rate,
	}
}

// FromDomain populates the persistence model from a domain FxRate entity.
func (m *FxRateModel) FromDomain(r *consolidation.FxRate) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.Day = r.Day
	m.Base = string(r.Base)
	m.Quote = string(r.Quote)
	m.Rate = r.Rate
}

// FxRateModelFromDomain creates a new persistence model from a domain FxRate.
func FxRateModelFromDomain(r *consolidation.FxRate) *FxRateModel {
	m := &FxRateModel{}
	m.FromDomain(r)
	return m
}

// EliminationRuleModel is the persistence model for the EliminationRule
// entity. Each rule type uses only its own columns; the rest stay at their
// zero value.
type EliminationRuleModel struct {
	BaseModel
	OrgID         uuid.UUID                         `gorm:"type:uuid;not null;index"`
	RuleType      consolidation.EliminationRuleType `gorm:"type:varchar(20);not null;index"`
	Name          string                            `gorm:"type:varchar(200);not null"`
	Active        bool                              `gorm:"not null;default:true;index"`
	SourcePattern string                            `gorm:"type:varchar(200)"`
	TenantA       *uuid.UUID                        `gorm:"type:uuid"`
	TenantB       *uuid.UUID                        `gorm:"type:uuid"`
	PairMetric    string                            `gorm:"type:varchar(100)"`
	TenantID      *uuid.UUID                        `gorm:"type:uuid"`
	Metric        string                            `gorm:"type:varchar(100)"`
	Amount        decimal.Decimal                   `gorm:"type:decimal(18,4);not null;default:0"`
	TagsJSON      string                            `gorm:"column:tags;type:jsonb;default:'[]'"`
}

// TableName returns the table name for GORM
func (EliminationRuleModel) TableName() string {
	return "elimination_rules"
}

// ToDomain converts the persistence model to a domain EliminationRule entity.
func (m *EliminationRuleModel) ToDomain() *consolidation.EliminationRule {
	rule := &consolidation.EliminationRule{
		BaseEntity:    m.BaseModel.ToDomain(),
		OrgID:         m.OrgID,
		RuleType:      m.RuleType,
		Name:          m.Name,
		Active:        m.Active,
		SourcePattern: m.SourcePattern,
		TenantA:       m.TenantA,
		TenantB:       m.TenantB,
		PairMetric:    m.PairMetric,
		TenantID:      m.TenantID,
		Metric:        m.Metric,
		Amount:        m.Amount,
	}
	if m.TagsJSON != "" && m.TagsJSON != "[]" {
		var tags []string
		if err := json.Unmarshal([]byte(m.TagsJSON), &tags); err != nil {
			modelLogger.Warn("failed to parse elimination rule tags JSON",
				zap.String("rule_id", m.ID.String()),
				zap.Error(err))
		} else {
			rule.Tags = tags
		}
	}
	return rule
}

// FromDomain populates the persistence model from a domain EliminationRule entity.
func (m *EliminationRuleModel) FromDomain(rule *consolidation.EliminationRule) {
	m.FromDomainBaseEntity(rule.BaseEntity)
	m.OrgID = rule.OrgID
	m.RuleType = rule.RuleType
	m.Name = rule.Name
	m.Active = rule.Active
	m.SourcePattern = rule.SourcePattern
	m.TenantA = rule.TenantA
	m.TenantB = rule.TenantB
	m.PairMetric = rule.PairMetric
	m.TenantID = rule.TenantID
	m.Metric = rule.Metric
	m.Amount = rule.Amount
	m.TagsJSON = "[]"
	if len(rule.Tags) > 0 {
		if jsonBytes, err := json.Marshal(rule.Tags); err == nil {
			m.TagsJSON = string(jsonBytes)
		}
	}
}

// EliminationRuleModelFromDomain creates a new persistence model from a domain EliminationRule.
func EliminationRuleModelFromDomain(rule *consolidation.EliminationRule) *EliminationRuleModel {
	m := &EliminationRuleModel{}
	m.FromDomain(rule)
	return m
}

// ConsolAdjustmentModel is the persistence model for the ConsolAdjustment
// entity. Versions of one logical key are separate rows.
type ConsolAdjustmentModel struct {
	BaseModel
	OrgID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Period      string          `gorm:"type:varchar(7);not null;index"`
	Metric      string          `gorm:"type:varchar(100);not null"`
	OrgUnitID   *uuid.UUID      `gorm:"type:uuid;index"`
	AmountLocal decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	AmountBase  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency    string          `gorm:"type:varchar(3);not null"`
	Note        string          `gorm:"type:text;not null"`
	Version     int             `gorm:"not null;default:1"`
	Published   bool            `gorm:"not null;default:false;index"`
	PublishedAt *time.Time
	PublishedBy *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (ConsolAdjustmentModel) TableName() string {
	return "consol_adjustments"
}

// ToDomain converts the persistence model to a domain ConsolAdjustment entity.
func (m *ConsolAdjustmentModel) ToDomain() *consolidation.ConsolAdjustment {
	return &consolidation.ConsolAdjustment{
		BaseEntity:  m.BaseModel.ToDomain(),
		OrgID:       m.OrgID,
		Period:      m.Period,
		Metric:      m.Metric,
		OrgUnitID:   m.OrgUnitID,
		AmountLocal: m.AmountLocal,
		AmountBase:  m.AmountBase,
		Currency:    valueobject.Currency(m.Currency),
		Note:        m.Note,
		Version:     m.Version,
		Published:   m.Published,
		PublishedAt: m.PublishedAt,
		PublishedBy: m.PublishedBy,
	}
}

// FromDomain populates the persistence model from a domain ConsolAdjustment entity.
func (m *ConsolAdjustmentModel) FromDomain(a *consolidation.ConsolAdjustment) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.OrgID = a.OrgID
	m.Period = a.Period
	m.Metric = a.Metric
	m.OrgUnitID = a.OrgUnitID
	m.AmountLocal = a.AmountLocal
	m.AmountBase = a.AmountBase
	m.Currency = string(a.Currency)
	m.Note = a.Note
	m.Version = a.Version
	m.Published = a.Published
	m.PublishedAt = a.PublishedAt
	m.PublishedBy = a.PublishedBy
}

// ConsolAdjustmentModelFromDomain creates a new persistence model from a domain ConsolAdjustment.
func ConsolAdjustmentModelFromDomain(a *consolidation.ConsolAdjustment) *ConsolAdjustmentModel {
	m := &ConsolAdjustmentModel{}
	m.FromDomain(a)
	return m
}

// ConsolFactModel is the persistence model for the ConsolFact entity. The
// unique key index backs the supersede-on-commit write path: a new run
// replaces the rows for its keys inside the commit transaction.
type ConsolFactModel struct {
	BaseModel
	OrgID           uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_consol_facts_key,priority:1"`
	OrgUnitID       uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_consol_facts_key,priority:2"`
	Period          string           `gorm:"type:varchar(7);not null;uniqueIndex:idx_consol_facts_key,priority:3"`
	Metric          string           `gorm:"type:varchar(100);not null;uniqueIndex:idx_consol_facts_key,priority:4"`
	ValueBase       *decimal.Decimal `gorm:"type:decimal(18,4)"`
	ValueLocal      decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Currency        string           `gorm:"type:varchar(3);not null"`
	FxRate          *decimal.Decimal `gorm:"type:decimal(18,8)"`
	EliminatedDelta decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	AdjustedDelta   decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	RunID           uuid.UUID        `gorm:"type:uuid;not null;index"`
}

// TableName returns the table name for GORM
func (ConsolFactModel) TableName() string {
	return "consol_facts"
}

// ToDomain converts the persistence model to a domain ConsolFact entity.
func (m *ConsolFactModel) ToDomain() *consolidation.ConsolFact {
	return &consolidation.ConsolFact{
		BaseEntity:      m.BaseModel.ToDomain(),
		OrgID:           m.OrgID,
		OrgUnitID:       m.OrgUnitID,
		Period:          m.Period,
		Metric:          m.Metric,
		ValueBase:       m.ValueBase,
		ValueLocal:      m.ValueLocal,
		Currency:        valueobject.Currency(m.Currency),
		FxRate:          m.FxRate,
		EliminatedDelta: m.EliminatedDelta,
		AdjustedDelta:   m.AdjustedDelta,
		RunID:           m.RunID,
	}
}

// FromDomain populates the persistence model from a domain ConsolFact entity.
func (m *ConsolFactModel) FromDomain(f *consolidation.ConsolFact) {
	m.FromDomainBaseEntity(f.BaseEntity)
	m.OrgID = f.OrgID
	m.OrgUnitID = f.OrgUnitID
	m.Period = f.Period
	m.Metric = f.Metric
	m.ValueBase = f.ValueBase
	m.ValueLocal = f.ValueLocal
	m.Currency = string(f.Currency)
	m.FxRate = f.FxRate
	m.EliminatedDelta = f.EliminatedDelta
	m.AdjustedDelta = f.AdjustedDelta
	m.RunID = f.RunID
}

// ConsolFactModelFromDomain creates a new persistence model from a domain ConsolFact.
func ConsolFactModelFromDomain(f *consolidation.ConsolFact) *ConsolFactModel {
	m := &ConsolFactModel{}
	m.FromDomain(f)
	return m
}

// ConsolRunModel is the persistence model for the ConsolRun entity. Scope,
// warnings, stats and step results are document-shaped audit data and are
// stored as JSONB.
type ConsolRunModel struct {
	BaseModel
	OrgID           uuid.UUID               `gorm:"type:uuid;not null;index"`
	Period          string                  `gorm:"type:varchar(7);not null;index"`
	ScopeJSON       string                  `gorm:"column:scope;type:jsonb;default:'{}'"`
	Status          consolidation.RunStatus `gorm:"type:varchar(20);not null;index"`
	FxRateDate      time.Time               `gorm:"type:date;not null"`
	TriggeredBy     uuid.UUID               `gorm:"type:uuid"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorMessage    string `gorm:"type:text"`
	WarningsJSON    string `gorm:"column:warnings;type:jsonb;default:'[]'"`
	StatsJSON       string `gorm:"column:stats;type:jsonb;default:'{}'"`
	StepResultsJSON string `gorm:"column:step_results;type:jsonb;default:'[]'"`
}

// TableName returns the table name for GORM
func (ConsolRunModel) TableName() string {
	return "consol_runs"
}

// ToDomain converts the persistence model to a domain ConsolRun entity.
func (m *ConsolRunModel) ToDomain() *consolidation.ConsolRun {
	run := &consolidation.ConsolRun{
		BaseEntity:   m.BaseModel.ToDomain(),
		OrgID:        m.OrgID,
		Period:       m.Period,
		Status:       m.Status,
		FxRateDate:   m.FxRateDate,
		TriggeredBy:  m.TriggeredBy,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		ErrorMessage: m.ErrorMessage,
	}

	if m.ScopeJSON != "" && m.ScopeJSON != "{}" {
		var scope consolidation.RunScope
		if err := json.Unmarshal([]byte(m.ScopeJSON), &scope); err != nil {
			modelLogger.Warn("failed to parse run scope JSON",
				zap.String("run_id", m.ID.String()),
				zap.Error(err))
		} else {
			run.Scope = scope
		}
	}

	if m.WarningsJSON != "" && m.WarningsJSON != "[]" {
		var warnings []string
		if err := json.Unmarshal([]byte(m.WarningsJSON), &warnings); err != nil {
			modelLogger.Warn("failed to parse run warnings JSON",
				zap.String("run_id", m.ID.String()),
				zap.Error(err))
		} else {
			run.Warnings = warnings
		}
	}

	if m.StatsJSON != "" && m.StatsJSON != "{}" {
		var stats consolidation.RunStats
		if err := json.Unmarshal([]byte(m.StatsJSON), &stats); err != nil {
			modelLogger.Warn("failed to parse run stats JSON",
				zap.String("run_id", m.ID.String()),
				zap.Error(err))
		} else {
			run.Stats = stats
		}
	}

	if m.StepResultsJSON != "" && m.StepResultsJSON != "[]" {
		var steps []consolidation.ConsolidationStepResult
		if err := json.Unmarshal([]byte(m.StepResultsJSON), &steps); err != nil {
			modelLogger.Warn("failed to parse run step results JSON",
				zap.String("run_id", m.ID.String()),
				zap.Error(err))
		} else {
			run.StepResults = steps
		}
	}

	return run
}

// FromDomain populates the persistence model from a domain ConsolRun entity.
func (m *ConsolRunModel) FromDomain(r *consolidation.ConsolRun) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.OrgID = r.OrgID
	m.Period = r.Period
	m.Status = r.Status
	m.FxRateDate = r.FxRateDate
	m.TriggeredBy = r.TriggeredBy
	m.StartedAt = r.StartedAt
	m.CompletedAt = r.CompletedAt
	m.ErrorMessage = r.ErrorMessage

	m.ScopeJSON = "{}"
	if jsonBytes, err := json.Marshal(r.Scope); err == nil {
		m.ScopeJSON = string(jsonBytes)
	}

	m.WarningsJSON = "[]"
	if len(r.Warnings) > 0 {
		if jsonBytes, err := json.Marshal(r.Warnings); err == nil {
			m.WarningsJSON = string(jsonBytes)
		}
	}

	m.StatsJSON = "{}"
	if jsonBytes, err := json.Marshal(r.Stats); err == nil {
		m.StatsJSON = string(jsonBytes)
	}

	m.StepResultsJSON = "[]"
	if len(r.StepResults) > 0 {
		if jsonBytes, err := json.Marshal(r.StepResults); err == nil {
			m.StepResultsJSON = string(jsonBytes)
		}
	}
}

// ConsolRunModelFromDomain creates a new persistence model from a domain ConsolRun.
func ConsolRunModelFromDomain(r *consolidation.ConsolRun) *ConsolRunModel {
	m := &ConsolRunModel{}
	m.FromDomain(r)
	return m
}

// TenantMetricValueModel stores the raw per-tenant metric values the
// collector reads through the MetricSource port. One row per
// (tenant, metric, period).
type TenantMetricValueModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_tenant_metric_values_key,priority:1"`
	Metric    string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_metric_values_key,priority:2"`
	Period    string          `gorm:"type:varchar(7);not null;uniqueIndex:idx_tenant_metric_values_key,priority:3"`
	Value     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency  string          `gorm:"type:varchar(3);not null"`
	SourceTag string          `gorm:"type:varchar(100)"`
	TagsJSON  string          `gorm:"column:tags;type:jsonb;default:'[]'"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TenantMetricValueModel) TableName() string {
	return "tenant_metric_values"
}

// ToDomain converts the persistence model to a domain RawMetricValue.
func (m *TenantMetricValueModel) ToDomain() consolidation.RawMetricValue {
	raw := consolidation.RawMetricValue{
		Value:     m.Value,
		Currency:  valueobject.Currency(m.Currency),
		SourceTag: m.SourceTag,
	}
	if m.TagsJSON != "" && m.TagsJSON != "[]" {
		var tags []string
		if err := json.Unmarshal([]byte(m.TagsJSON), &tags); err != nil {
			modelLogger.Warn("failed to parse tenant metric tags JSON",
				zap.String("tenant_id", m.TenantID.String()),
				zap.String("metric", m.Metric),
				zap.Error(err))
		} else {
			raw.Tags = tags
		}
	}
	return raw
}
