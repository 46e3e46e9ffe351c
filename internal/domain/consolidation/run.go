package consolidation

import (
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunStatus is the consolidation run lifecycle state.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// IsValid checks if the status is a known state.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the run can no longer transition.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CanTransitionTo enforces pending → running → {completed, failed}.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusFailed
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusFailed
	}
	return false
}

// RunScope is the requested scope of a run: explicit unit ids plus whether
// their descendants are included. Empty ids means the full org forest.
type RunScope struct {
	OrgUnitIDs         []uuid.UUID `json:"org_unit_ids,omitempty"`
	IncludeDescendants bool        `json:"include_descendants"`
}

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// ConsolidationStepResult is one step's audit record, collected regardless
// of the run outcome.
type ConsolidationStepResult struct {
	Step     string        `json:"step"`
	Status   StepStatus    `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunStats summarizes what a run processed.
type RunStats struct {
	UnitsProcessed         int           `json:"units_processed"`
	TenantsProcessed       int           `json:"tenants_processed"`
	MetricsProcessed       int           `json:"metrics_processed"`
	ContributionsCollected int           `json:"contributions_collected"`
	EliminationsApplied    int           `json:"eliminations_applied"`
	AdjustmentsApplied     int           `json:"adjustments_applied"`
	FactsWritten           int           `json:"facts_written"`
	TotalDuration          time.Duration `json:"total_duration"`
}

// ConsolRun is one execution of the pipeline for an org, period and scope.
// The runner is its only writer.
type ConsolRun struct {
	shared.BaseEntity
	OrgID        uuid.UUID
	Period       string
	Scope        RunScope
	Status       RunStatus
	FxRateDate   time.Time
	TriggeredBy  uuid.UUID
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Warnings     []string
	Stats        RunStats
	StepResults  []ConsolidationStepResult
}

// NewConsolRun creates a pending run.
func NewConsolRun(orgID uuid.UUID, period Period, scope RunScope, fxRateDate time.Time, triggeredBy uuid.UUID) *ConsolRun {
	return &ConsolRun{
		BaseEntity:  shared.NewBaseEntity(),
		OrgID:       orgID,
		Period:      period.Key(),
		Scope:       scope,
		Status:      RunStatusPending,
		FxRateDate:  fxRateDate,
		TriggeredBy: triggeredBy,
	}
}

// Start transitions pending → running.
func (r *ConsolRun) Start() error {
	if !r.Status.CanTransitionTo(RunStatusRunning) {
		return shared.NewDomainError("INVALID_STATE", "Run cannot start from status "+string(r.Status))
	}
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
	return nil
}

// Complete transitions running → completed with final stats.
func (r *ConsolRun) Complete(stats RunStats) error {
	if !r.Status.CanTransitionTo(RunStatusCompleted) {
		return shared.NewDomainError("INVALID_STATE", "Run cannot complete from status "+string(r.Status))
	}
	now := time.Now()
	r.Status = RunStatusCompleted
	r.Stats = stats
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// Fail transitions the run to failed with the captured message. Failing is
// allowed from pending and running.
func (r *ConsolRun) Fail(message string) error {
	if !r.Status.CanTransitionTo(RunStatusFailed) {
		return shared.NewDomainError("INVALID_STATE", "Run cannot fail from status "+string(r.Status))
	}
	now := time.Now()
	r.Status = RunStatusFailed
	r.ErrorMessage = message
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// rollbackCompletion reverts an in-memory completion whose commit did not
// persist, so the failure path can record the real terminal state.
func (r *ConsolRun) rollbackCompletion() {
	if r.Status != RunStatusCompleted {
		return
	}
	r.Status = RunStatusRunning
	r.CompletedAt = nil
}

// AddStepResult appends a step's audit record.
func (r *ConsolRun) AddStepResult(res ConsolidationStepResult) {
	r.StepResults = append(r.StepResults, res)
}

// AddWarning records a non-fatal issue, such as a skipped contribution.
func (r *ConsolRun) AddWarning(w string) {
	r.Warnings = append(r.Warnings, w)
}

// ConsolFact is one committed consolidated value, the run's immutable
// output. (OrgID, OrgUnitID, Period, Metric) is the unique key; a new run
// for the key supersedes, never patches, prior facts.
type ConsolFact struct {
	shared.BaseEntity
	OrgID     uuid.UUID
	OrgUnitID uuid.UUID
	Period    string
	Metric    string
	// ValueBase is nil when an averaging metric had no weighted data.
	ValueBase       *decimal.Decimal
	ValueLocal      decimal.Decimal
	Currency        valueobject.Currency
	FxRate          *decimal.Decimal
	EliminatedDelta decimal.Decimal
	AdjustedDelta   decimal.Decimal
	RunID           uuid.UUID
}

// NewConsolFact builds a fact from a consolidated value.
func NewConsolFact(orgID uuid.UUID, period Period, baseCurrency valueobject.Currency, runID uuid.UUID, cv ConsolidatedValue) *ConsolFact {
	return &ConsolFact{
		BaseEntity:      shared.NewBaseEntity(),
		OrgID:           orgID,
		OrgUnitID:       cv.OrgUnitID,
		Period:          period.Key(),
		Metric:          cv.Metric,
		ValueBase:       cv.Value,
		ValueLocal:      cv.ValueLocal,
		Currency:        baseCurrency,
		FxRate:          cv.FxRate,
		EliminatedDelta: cv.EliminatedDelta,
		AdjustedDelta:   cv.AdjustedDelta,
		RunID:           runID,
	}
}

// ConsolidationOutput is the full result handed to collaborators after a
// run, audit trail included.
type ConsolidationOutput struct {
	RunID        uuid.UUID                 `json:"run_id"`
	Facts        []*ConsolFact             `json:"facts"`
	Eliminations []EliminationMatch        `json:"eliminations"`
	Adjustments  []AdjustmentApplication   `json:"adjustments"`
	FxRates      []*FxRate                 `json:"fx_rates"`
	StepResults  []ConsolidationStepResult `json:"step_results"`
	Stats        RunStats                  `json:"stats"`
	Warnings     []string                  `json:"warnings,omitempty"`
}
