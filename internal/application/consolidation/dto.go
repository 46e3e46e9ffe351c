package consolidation

import (
	"time"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Org unit DTOs
// =============================================================================

// CreateOrgUnitRequest represents a request to create an org unit
type CreateOrgUnitRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
	Name     string     `json:"name" binding:"required,min=1,max=200"`
	Code     string     `json:"code" binding:"required,min=1,max=50"`
	Currency *string    `json:"currency" binding:"omitempty,currency"`
}

// UpdateOrgUnitRequest represents a request to update an org unit
type UpdateOrgUnitRequest struct {
	Name     *string    `json:"name" binding:"omitempty,min=1,max=200"`
	ParentID *uuid.UUID `json:"parent_id"`
	Currency *string    `json:"currency" binding:"omitempty,currency"`
}

// OrgUnitResponse represents an org unit in API responses
type OrgUnitResponse struct {
	ID        uuid.UUID  `json:"id"`
	OrgID     uuid.UUID  `json:"org_id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	Currency  *string    `json:"currency,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ToOrgUnitResponse maps a domain org unit to its response form
func ToOrgUnitResponse(u *consolidation.OrgUnit) OrgUnitResponse {
	resp := OrgUnitResponse{
		ID:        u.ID,
		OrgID:     u.OrgID,
		ParentID:  u.ParentID,
		Name:      u.Name,
		Code:      u.Code,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.Currency != nil {
		c := string(*u.Currency)
		resp.Currency = &c
	}
	return resp
}

// =============================================================================
// Membership DTOs
// =============================================================================

// AddMemberRequest attaches a tenant to an org unit
type AddMemberRequest struct {
	TenantID     uuid.UUID       `json:"tenant_id" binding:"required"`
	PercentShare decimal.Decimal `json:"percent_share" binding:"required"`
	StartDate    time.Time       `json:"start_date" binding:"required" time_format:"2006-01-02"`
	EndDate      *time.Time      `json:"end_date" time_format:"2006-01-02"`
}

// CloseMemberRequest ends a membership
type CloseMemberRequest struct {
	EndDate time.Time `json:"end_date" binding:"required" time_format:"2006-01-02"`
}

// MemberResponse represents a membership in API responses
type MemberResponse struct {
	ID           uuid.UUID       `json:"id"`
	OrgUnitID    uuid.UUID       `json:"org_unit_id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	PercentShare decimal.Decimal `json:"percent_share"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ToMemberResponse maps a domain membership to its response form
func ToMemberResponse(m *consolidation.OrgUnitMember) MemberResponse {
	return MemberResponse{
		ID:           m.ID,
		OrgUnitID:    m.OrgUnitID,
		TenantID:     m.TenantID,
		PercentShare: m.PercentShare,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		CreatedAt:    m.CreatedAt,
	}
}

// HierarchyValidationResponse is the outcome of a structural check,
// warnings included.
type HierarchyValidationResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// =============================================================================
// Metric definition DTOs
// =============================================================================

// SaveMetricRequest creates or updates a metric definition
type SaveMetricRequest struct {
	Key              string `json:"key" binding:"required,min=1,max=100"`
	Name             string `json:"name" binding:"required,min=1,max=200"`
	Aggregation      string `json:"aggregation" binding:"required,oneof=SUM AVG COUNT MIN MAX"`
	Decimals         int32  `json:"decimals" binding:"min=0,max=12"`
	Unit             string `json:"unit" binding:"max=50"`
	RequiredComplete bool   `json:"required_complete"`
}

// MetricResponse represents a metric definition in API responses
type MetricResponse struct {
	Key              string `json:"key"`
	Name             string `json:"name"`
	Aggregation      string `json:"aggregation"`
	Decimals         int32  `json:"decimals"`
	Unit             string `json:"unit,omitempty"`
	RequiredComplete bool   `json:"required_complete"`
}

// ToMetricResponse maps a metric definition to its response form
func ToMetricResponse(d consolidation.MetricDefinition) MetricResponse {
	return MetricResponse{
		Key:              d.Key,
		Name:             d.Name,
		Aggregation:      string(d.Aggregation),
		Decimals:         d.Decimals,
		Unit:             d.Unit,
		RequiredComplete: d.RequiredComplete,
	}
}

// =============================================================================
// Elimination rule DTOs
// =============================================================================

// CreateEliminationRuleRequest creates a rule of one tagged variant. Only the
// fields of the requested type are read.
type CreateEliminationRuleRequest struct {
	RuleType string `json:"rule_type" binding:"required,oneof=EVENT_SOURCE TENANT_PAIR MANUAL TAG_BASED"`
	Name     string `json:"name" binding:"required,min=1,max=200"`

	SourcePattern string `json:"source_pattern" binding:"max=200"`

	TenantA    *uuid.UUID `json:"tenant_a"`
	TenantB    *uuid.UUID `json:"tenant_b"`
	PairMetric string     `json:"pair_metric" binding:"max=100"`

	TenantID *uuid.UUID       `json:"tenant_id"`
	Metric   string           `json:"metric" binding:"max=100"`
	Amount   *decimal.Decimal `json:"amount"`

	Tags []string `json:"tags"`
}

// EliminationRuleResponse represents a rule in API responses
type EliminationRuleResponse struct {
	ID            uuid.UUID        `json:"id"`
	RuleType      string           `json:"rule_type"`
	Name          string           `json:"name"`
	Active        bool             `json:"active"`
	SourcePattern string           `json:"source_pattern,omitempty"`
	TenantA       *uuid.UUID       `json:"tenant_a,omitempty"`
	TenantB       *uuid.UUID       `json:"tenant_b,omitempty"`
	PairMetric    string           `json:"pair_metric,omitempty"`
	TenantID      *uuid.UUID       `json:"tenant_id,omitempty"`
	Metric        string           `json:"metric,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ToEliminationRuleResponse maps a domain rule to its response form
func ToEliminationRuleResponse(r *consolidation.EliminationRule) EliminationRuleResponse {
	resp := EliminationRuleResponse{
		ID:            r.ID,
		RuleType:      string(r.RuleType),
		Name:          r.Name,
		Active:        r.Active,
		SourcePattern: r.SourcePattern,
		TenantA:       r.TenantA,
		TenantB:       r.TenantB,
		PairMetric:    r.PairMetric,
		TenantID:      r.TenantID,
		Metric:        r.Metric,
		Tags:          r.Tags,
		CreatedAt:     r.CreatedAt,
	}
	if r.RuleType == consolidation.RuleTypeManual {
		amount := r.Amount
		resp.Amount = &amount
	}
	return resp
}

// =============================================================================
// Adjustment DTOs
// =============================================================================

// CreateAdjustmentRequest creates a version-1 draft adjustment
type CreateAdjustmentRequest struct {
	Period      string          `json:"period" binding:"required,period"`
	Metric      string          `json:"metric" binding:"required,min=1,max=100"`
	OrgUnitID   *uuid.UUID      `json:"org_unit_id"`
	AmountLocal decimal.Decimal `json:"amount_local" binding:"required"`
	AmountBase  decimal.Decimal `json:"amount_base" binding:"required"`
	Currency    string          `json:"currency" binding:"required,currency"`
	Note        string          `json:"note" binding:"required,min=1,max=1000"`
}

// ReviseAdjustmentRequest creates the next draft version of an adjustment
type ReviseAdjustmentRequest struct {
	AmountLocal decimal.Decimal `json:"amount_local" binding:"required"`
	AmountBase  decimal.Decimal `json:"amount_base" binding:"required"`
	Note        string          `json:"note" binding:"required,min=1,max=1000"`
	// BaseVersion is the version the caller revised from; a mismatch with
	// the stored maximum fails with ADJUSTMENT_VERSION_CONFLICT.
	BaseVersion int `json:"base_version" binding:"required,min=1"`
}

// AdjustmentListFilter filters adjustment queries
type AdjustmentListFilter struct {
	Period    *string    `form:"period" binding:"omitempty,period"`
	Metric    *string    `form:"metric"`
	OrgUnitID *uuid.UUID `form:"org_unit_id"`
	Published *bool      `form:"published"`
	Page      int        `form:"page"`
	PageSize  int        `form:"page_size"`
}

// AdjustmentResponse represents an adjustment in API responses
type AdjustmentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Period      string          `json:"period"`
	Metric      string          `json:"metric"`
	OrgUnitID   *uuid.UUID      `json:"org_unit_id,omitempty"`
	AmountLocal decimal.Decimal `json:"amount_local"`
	AmountBase  decimal.Decimal `json:"amount_base"`
	Currency    string          `json:"currency"`
	Note        string          `json:"note"`
	Version     int             `json:"version"`
	Published   bool            `json:"published"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	PublishedBy *uuid.UUID      `json:"published_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToAdjustmentResponse maps a domain adjustment to its response form
func ToAdjustmentResponse(a *consolidation.ConsolAdjustment) AdjustmentResponse {
	return AdjustmentResponse{
		ID:          a.ID,
		Period:      a.Period,
		Metric:      a.Metric,
		OrgUnitID:   a.OrgUnitID,
		AmountLocal: a.AmountLocal,
		AmountBase:  a.AmountBase,
		Currency:    string(a.Currency),
		Note:        a.Note,
		Version:     a.Version,
		Published:   a.Published,
		PublishedAt: a.PublishedAt,
		PublishedBy: a.PublishedBy,
		CreatedAt:   a.CreatedAt,
	}
}

// =============================================================================
// FX rate DTOs
// =============================================================================

// RecordFxRateRequest records a daily rate for a currency pair
type RecordFxRateRequest struct {
	Day   time.Time       `json:"day" binding:"required" time_format:"2006-01-02"`
	Base  string          `json:"base" binding:"required,currency"`
	Quote string          `json:"quote" binding:"required,currency"`
	Rate  decimal.Decimal `json:"rate" binding:"required"`
}

// FxRateResponse represents a rate in API responses
type FxRateResponse struct {
	ID        uuid.UUID       `json:"id"`
	Day       string          `json:"day"`
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	CreatedAt time.Time       `json:"created_at"`
}

// ToFxRateResponse maps a domain rate to its response form
func ToFxRateResponse(r *consolidation.FxRate) FxRateResponse {
	return FxRateResponse{
		ID:        r.ID,
		Day:       r.Day.Format("2006-01-02"),
		Base:      string(r.Base),
		Quote:     string(r.Quote),
		Rate:      r.Rate,
		CreatedAt: r.CreatedAt,
	}
}

// =============================================================================
// Run and fact DTOs
// =============================================================================

// RunConsolidationRequest triggers a run for a period
type RunConsolidationRequest struct {
	Period             string      `json:"period" binding:"required,period"`
	OrgUnitIDs         []uuid.UUID `json:"org_unit_ids"`
	IncludeDescendants bool        `json:"include_descendants"`
	// FxRateDate defaults to the last day of the period.
	FxRateDate *time.Time `json:"fx_rate_date" time_format:"2006-01-02"`
	// BaseCurrency defaults to the configured org base currency.
	BaseCurrency *string    `json:"base_currency" binding:"omitempty,currency"`
	TriggeredBy  *uuid.UUID `json:"-"`
}

// RunListFilter filters run queries
type RunListFilter struct {
	Period   *string `form:"period" binding:"omitempty,period"`
	Status   *string `form:"status" binding:"omitempty,oneof=PENDING RUNNING COMPLETED FAILED"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// StepResultResponse is one pipeline step's audit record
type StepResultResponse struct {
	Step       string `json:"step"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RunResponse represents a run in API responses
type RunResponse struct {
	ID           uuid.UUID                 `json:"id"`
	OrgID        uuid.UUID                 `json:"org_id"`
	Period       string                    `json:"period"`
	Scope        consolidation.RunScope    `json:"scope"`
	Status       string                    `json:"status"`
	FxRateDate   string                    `json:"fx_rate_date"`
	TriggeredBy  uuid.UUID                 `json:"triggered_by"`
	StartedAt    *time.Time                `json:"started_at,omitempty"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
	ErrorMessage string                    `json:"error_message,omitempty"`
	Warnings     []string                  `json:"warnings,omitempty"`
	Stats        consolidation.RunStats    `json:"stats"`
	StepResults  []StepResultResponse      `json:"step_results,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
}

// ToRunResponse maps a domain run to its response form
func ToRunResponse(r *consolidation.ConsolRun) RunResponse {
	resp := RunResponse{
		ID:           r.ID,
		OrgID:        r.OrgID,
		Period:       r.Period,
		Scope:        r.Scope,
		Status:       string(r.Status),
		FxRateDate:   r.FxRateDate.Format("2006-01-02"),
		TriggeredBy:  r.TriggeredBy,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		ErrorMessage: r.ErrorMessage,
		Warnings:     r.Warnings,
		Stats:        r.Stats,
		CreatedAt:    r.CreatedAt,
	}
	for _, sr := range r.StepResults {
		resp.StepResults = append(resp.StepResults, StepResultResponse{
			Step:       sr.Step,
			Status:     string(sr.Status),
			Message:    sr.Message,
			DurationMs: sr.Duration.Milliseconds(),
		})
	}
	return resp
}

// RunOutputURLResponse carries a time-limited link to an archived run output
type RunOutputURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FactListFilter filters fact queries
type FactListFilter struct {
	OrgUnitID  *uuid.UUID `form:"org_unit_id"`
	Metric     *string    `form:"metric"`
	PeriodFrom *string    `form:"period_from" binding:"omitempty,period"`
	PeriodTo   *string    `form:"period_to" binding:"omitempty,period"`
	RunID      *uuid.UUID `form:"run_id"`
	Page       int        `form:"page"`
	PageSize   int        `form:"page_size"`
}

// FactResponse represents a consolidated fact in API responses
type FactResponse struct {
	ID              uuid.UUID        `json:"id"`
	OrgUnitID       uuid.UUID        `json:"org_unit_id"`
	Period          string           `json:"period"`
	Metric          string           `json:"metric"`
	ValueBase       *decimal.Decimal `json:"value_base"`
	ValueLocal      decimal.Decimal  `json:"value_local"`
	Currency        string           `json:"currency"`
	FxRate          *decimal.Decimal `json:"fx_rate,omitempty"`
	EliminatedDelta decimal.Decimal  `json:"eliminated_delta"`
	AdjustedDelta   decimal.Decimal  `json:"adjusted_delta"`
	RunID           uuid.UUID        `json:"run_id"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ToFactResponse maps a domain fact to its response form
func ToFactResponse(f *consolidation.ConsolFact) FactResponse {
	return FactResponse{
		ID:              f.ID,
		OrgUnitID:       f.OrgUnitID,
		Period:          f.Period,
		Metric:          f.Metric,
		ValueBase:       f.ValueBase,
		ValueLocal:      f.ValueLocal,
		Currency:        string(f.Currency),
		FxRate:          f.FxRate,
		EliminatedDelta: f.EliminatedDelta,
		AdjustedDelta:   f.AdjustedDelta,
		RunID:           f.RunID,
		CreatedAt:       f.CreatedAt,
	}
}
