package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunSnapshot is the read-only input set a run works from. It is loaded
// before the first step and never refreshed, so hierarchy or adjustment
// changes made mid-run cannot affect the run (snapshot isolation).
type RunSnapshot struct {
	Units        []*OrgUnit
	Members      []*OrgUnitMember
	Rules        []*EliminationRule
	Adjustments  []*ConsolAdjustment
	Metrics      []string
	BaseCurrency valueobject.Currency
}

// RunCommitter persists run state. CommitCompleted must write the fact batch,
// supersede prior facts for the same keys, and flip the run to completed in
// one transaction, so a persisted fact always belongs to a completed run.
type RunCommitter interface {
	SaveRun(ctx context.Context, run *ConsolRun) error
	CommitCompleted(ctx context.Context, run *ConsolRun, facts []*ConsolFact) error
}

// ConsolidationRunner orchestrates the pipeline: collect → convert →
// eliminate → adjust → rollup → commit. It exclusively owns ConsolRun state
// and is the only producer of ConsolFact rows.
type ConsolidationRunner struct {
	source    MetricSource
	fxLookup  FxRateLookup
	registry  *MetricRegistry
	committer RunCommitter
	logger    *zap.Logger
	workers   int
}

// NewConsolidationRunner creates a runner. workers bounds collection
// parallelism.
func NewConsolidationRunner(source MetricSource, fxLookup FxRateLookup, registry *MetricRegistry, committer RunCommitter, logger *zap.Logger, workers int) *ConsolidationRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolidationRunner{
		source:    source,
		fxLookup:  fxLookup,
		registry:  registry,
		committer: committer,
		logger:    logger,
		workers:   workers,
	}
}

// runState carries the working set between steps. Each step consumes the
// previous step's complete output.
type runState struct {
	period        Period
	graph         *HierarchyGraph
	scope         []uuid.UUID
	members       []*OrgUnitMember
	converter     *FxConverter
	contributions []TenantContribution
	applier       *AdjustmentApplier
	matches       []EliminationMatch
	applications  []AdjustmentApplication
	values        []ConsolidatedValue
	facts         []*ConsolFact
}

type pipelineStep struct {
	name string
	fn   func(ctx context.Context, run *ConsolRun, snap RunSnapshot, st *runState) error
}

// Execute runs the pipeline for a pending run. On any step failure or
// cancellation the run terminates failed with no facts written; on success
// the fact batch and the completed status commit atomically.
func (r *ConsolidationRunner) Execute(ctx context.Context, run *ConsolRun, snap RunSnapshot) (*ConsolidationOutput, error) {
	period, err := ParsePeriod(run.Period)
	if err != nil {
		return nil, r.fail(ctx, run, err)
	}

	if err := run.Start(); err != nil {
		return nil, err
	}
	if err := r.committer.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	r.logger.Info("consolidation run started",
		zap.String("run_id", run.ID.String()),
		zap.String("org_id", run.OrgID.String()),
		zap.String("period", run.Period))

	st := &runState{period: period, converter: NewFxConverter(r.fxLookup)}

	steps := []pipelineStep{
		{name: "collect", fn: r.stepCollect},
		{name: "convert", fn: r.stepConvert},
		{name: "eliminate", fn: r.stepEliminate},
		{name: "adjust", fn: r.stepAdjust},
		{name: "rollup", fn: r.stepRollup},
		{name: "commit", fn: r.stepCommit},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			run.AddStepResult(ConsolidationStepResult{Step: step.name, Status: StepStatusSkipped, Message: "run cancelled"})
			return nil, r.fail(ctx, run, fmt.Errorf("run cancelled before step %s: %w", step.name, err))
		}
		stepStart := time.Now()
		if err := step.fn(ctx, run, snap, st); err != nil {
			run.AddStepResult(ConsolidationStepResult{
				Step:     step.name,
				Status:   StepStatusFailed,
				Message:  err.Error(),
				Duration: time.Since(stepStart),
			})
			return nil, r.fail(ctx, run, err)
		}
		run.AddStepResult(ConsolidationStepResult{
			Step:     step.name,
			Status:   StepStatusCompleted,
			Duration: time.Since(stepStart),
		})
	}

	r.logger.Info("consolidation run completed",
		zap.String("run_id", run.ID.String()),
		zap.Int("facts_written", run.Stats.FactsWritten),
		zap.Duration("duration", run.Stats.TotalDuration))

	return &ConsolidationOutput{
		RunID:        run.ID,
		Facts:        st.facts,
		Eliminations: st.matches,
		Adjustments:  st.applications,
		FxRates:      st.converter.RatesUsed(),
		StepResults:  run.StepResults,
		Stats:        run.Stats,
		Warnings:     run.Warnings,
	}, nil
}

func (r *ConsolidationRunner) fail(ctx context.Context, run *ConsolRun, cause error) error {
	if !run.Status.IsTerminal() {
		if err := run.Fail(cause.Error()); err == nil {
			// Persist the terminal state even when the original context is
			// gone, so cancelled runs are not left running forever.
			saveCtx := ctx
			if ctx.Err() != nil {
				var cancel context.CancelFunc
				saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
			}
			if saveErr := r.committer.SaveRun(saveCtx, run); saveErr != nil {
				r.logger.Error("failed to persist failed run state",
					zap.String("run_id", run.ID.String()), zap.Error(saveErr))
			}
		}
	}
	r.logger.Warn("consolidation run failed",
		zap.String("run_id", run.ID.String()), zap.Error(cause))
	return cause
}

// stepCollect resolves the scope and gathers weighted contributions from the
// metric source.
func (r *ConsolidationRunner) stepCollect(ctx context.Context, run *ConsolRun, snap RunSnapshot, st *runState) error {
	st.graph = NewHierarchyGraph(snap.Units)
	scope, err := st.graph.ResolveScope(run.Scope.OrgUnitIDs, run.Scope.IncludeDescendants)
	if err != nil {
		return err
	}
	st.scope = scope

	inScope := make(map[uuid.UUID]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}
	for _, m := range snap.Members {
		if inScope[m.OrgUnitID] {
			st.members = append(st.members, m)
		}
	}

	collector := NewTenantMetricCollector(r.source, r.registry, r.workers)
	st.contributions, err = collector.Collect(ctx, st.members, snap.Metrics, st.period)
	if err != nil {
		return err
	}

	tenants := make(map[uuid.UUID]bool)
	for _, c := range st.contributions {
		tenants[c.TenantID] = true
	}
	run.Stats.UnitsProcessed = len(scope)
	run.Stats.TenantsProcessed = len(tenants)
	run.Stats.MetricsProcessed = len(snap.Metrics)
	run.Stats.ContributionsCollected = len(st.contributions)
	return nil
}

// stepConvert normalizes every contribution into the base currency as of
// the run's FX rate date. A missing rate fails the run only for
// required-complete metrics; otherwise the contribution is excluded with a
// recorded warning.
func (r *ConsolidationRunner) stepConvert(ctx context.Context, run *ConsolRun, snap RunSnapshot, st *runState) error {
	kept := make([]TenantContribution, 0, len(st.contributions))
	for _, c := range st.contributions {
		conv, err := st.converter.Convert(ctx, c.Value, c.Currency, snap.BaseCurrency, run.FxRateDate)
		if err != nil {
			var domainErr *shared.DomainError
			if errors.As(err, &domainErr) && domainErr.Code == "MISSING_FX_RATE" {
				if def, ok := r.registry.Get(c.Metric); ok && def.RequiredComplete {
					return err
				}
				run.AddWarning(fmt.Sprintf("contribution excluded for tenant %s metric %s: %s", c.TenantID, c.Metric, domainErr.Message))
				continue
			}
			return err
		}
		c.BaseValue = conv.Converted
		c.FxRate = conv.Rate
		c.FxRateDay = conv.RateDay
		kept = append(kept, c)
	}
	st.contributions = kept
	return nil
}

// stepEliminate applies active elimination rules in creation order.
func (r *ConsolidationRunner) stepEliminate(ctx context.Context, run *ConsolRun, snap RunSnapshot, st *runState) error {
	engine := NewEliminationEngine(snap.Rules)
	st.matches = engine.Apply(st.contributions)
	run.Stats.EliminationsApplied = len(st.matches)
	return nil
}

// stepAdjust resolves the active published adjustment per key from the
// snapshot. Applications happen during rollup, once per owning scope.
func (r *ConsolidationRunner) stepAdjust(ctx context.Context, run *ConsolRun, snap RunSnapshot, st *runState) error {
	st.applier = NewAdjustmentApplier(snap.Adjustments)
	return nil
}

// stepRollup folds contributions bottom-up through the hierarchy.
func (r *ConsolidationRunner) stepRollup(ctx context.Context, run *ConsolRun, snap RunSnapshot, st *runState) error {
	aggregator := NewRollupAggregator(st.graph, r.registry)
	st.values, st.applications = aggregator.Rollup(st.scope, snap.Metrics, st.contributions, st.applier)
	run.Stats.AdjustmentsApplied = len(st.applications)
	return nil
}

// stepCommit writes the fact batch and the completed run atomically.
func (r *ConsolidationRunner) stepCommit(ctx context.Context, run *ConsolRun, snap RunSnapshot, st *runState) error {
	st.facts = make([]*ConsolFact, 0, len(st.values))
	for _, cv := range st.values {
		st.facts = append(st.facts, NewConsolFact(run.OrgID, st.period, snap.BaseCurrency, run.ID, cv))
	}
	run.Stats.FactsWritten = len(st.facts)
	if run.StartedAt != nil {
		run.Stats.TotalDuration = time.Since(*run.StartedAt)
	}

	stats := run.Stats
	if err := run.Complete(stats); err != nil {
		return err
	}
	if err := r.committer.CommitCompleted(ctx, run, st.facts); err != nil {
		run.rollbackCompletion()
		if errors.Is(err, ErrRunStateChanged) {
			// Another writer already moved the persisted run to a terminal
			// state, typically an operator cancel. Their row wins; only the
			// in-memory copy is marked failed here.
			_ = run.Fail("run was cancelled before facts could commit")
		}
		return err
	}
	return nil
}
