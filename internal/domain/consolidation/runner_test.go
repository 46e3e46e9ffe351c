package consolidation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scenarioFixture is a minimal two-level hierarchy: Root -> Unit-C with
// tenant T1 holding 60% of Unit-C from 2024-01-01 open ended and a raw
// volunteer_hours value of 100 for 2024-01.
type scenarioFixture struct {
	orgID    uuid.UUID
	root     *OrgUnit
	unitC    *OrgUnit
	tenantT1 uuid.UUID
	source   *fakeMetricSource
	fx       *fakeFxLookup
	snap     RunSnapshot
}

func newScenarioFixture(t *testing.T) *scenarioFixture {
	t.Helper()
	f := &scenarioFixture{orgID: uuid.New(), tenantT1: uuid.New()}
	f.root = mustUnit(t, f.orgID, nil, "Root", "ROOT")
	f.unitC = mustUnit(t, f.orgID, &f.root.ID, "Unit C", "UNIT-C")

	f.source = newFakeMetricSource()
	f.source.set(f.tenantT1, "volunteer_hours", RawMetricValue{Value: dec(100), Currency: "EUR"})

	f.fx = &fakeFxLookup{}

	member := mustMember(t, f.orgID, f.unitC.ID, f.tenantT1, 60, "2024-01-01", nil)
	f.snap = RunSnapshot{
		Units:        []*OrgUnit{f.root, f.unitC},
		Members:      []*OrgUnitMember{member},
		Metrics:      []string{"volunteer_hours"},
		BaseCurrency: "EUR",
	}
	return f
}

func (f *scenarioFixture) runner(t *testing.T, committer RunCommitter) *ConsolidationRunner {
	t.Helper()
	return NewConsolidationRunner(f.source, f.fx, testRegistry(t), committer, zap.NewNop(), 4)
}

func (f *scenarioFixture) newRun() *ConsolRun {
	return NewConsolRun(f.orgID, MustParsePeriod("2024-01"), RunScope{}, MustParsePeriod("2024-01").LastDay(), uuid.New())
}

func factFor(facts []*ConsolFact, unitID uuid.UUID, metric string) *ConsolFact {
	for _, f := range facts {
		if f.OrgUnitID == unitID && f.Metric == metric {
			return f
		}
	}
	return nil
}

func TestConsolidationRunnerScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("weighted share rolls up to the root", func(t *testing.T) {
		f := newScenarioFixture(t)
		committer := &memCommitter{}
		out, err := f.runner(t, committer).Execute(ctx, f.newRun(), f.snap)
		require.NoError(t, err)

		unitC := factFor(out.Facts, f.unitC.ID, "volunteer_hours")
		root := factFor(out.Facts, f.root.ID, "volunteer_hours")
		require.NotNil(t, unitC)
		require.NotNil(t, root)
		assert.True(t, unitC.ValueBase.Equal(dec(60)), "got %s", unitC.ValueBase)
		assert.True(t, root.ValueBase.Equal(dec(60)))
		assert.Empty(t, out.Eliminations)
		assert.Len(t, committer.committed, 2)
	})

	t.Run("manual elimination zeroes the branch", func(t *testing.T) {
		f := newScenarioFixture(t)
		rule, err := NewManualEliminationRule(f.orgID, "remove T1", f.tenantT1, "volunteer_hours", dec(60))
		require.NoError(t, err)
		f.snap.Rules = []*EliminationRule{rule}

		out, err := f.runner(t, &memCommitter{}).Execute(ctx, f.newRun(), f.snap)
		require.NoError(t, err)

		assert.True(t, factFor(out.Facts, f.unitC.ID, "volunteer_hours").ValueBase.IsZero())
		assert.True(t, factFor(out.Facts, f.root.ID, "volunteer_hours").ValueBase.IsZero())
		require.Len(t, out.Eliminations, 1)
		assert.True(t, out.Eliminations[0].Amount.Equal(dec(60)))
	})

	t.Run("conversion records the resolved rate on the fact", func(t *testing.T) {
		f := newScenarioFixture(t)
		f.source.set(f.tenantT1, "volunteer_hours", RawMetricValue{Value: dec(100), Currency: "USD"})
		f.fx.add(t, "2024-01-31", "USD", "EUR", 0.92)
		// 100% share so the converted value is the full 92.00.
		f.snap.Members = []*OrgUnitMember{mustMember(t, f.orgID, f.unitC.ID, f.tenantT1, 100, "2024-01-01", nil)}

		out, err := f.runner(t, &memCommitter{}).Execute(ctx, f.newRun(), f.snap)
		require.NoError(t, err)

		unitC := factFor(out.Facts, f.unitC.ID, "volunteer_hours")
		require.NotNil(t, unitC)
		assert.True(t, unitC.ValueBase.Equal(dec(92)), "got %s", unitC.ValueBase)
		require.NotNil(t, unitC.FxRate)
		assert.True(t, unitC.FxRate.Equal(dec(0.92)))
		require.Len(t, out.FxRates, 1)
	})

	t.Run("published adjustment applies after elimination", func(t *testing.T) {
		f := newScenarioFixture(t)
		rule, err := NewManualEliminationRule(f.orgID, "remove T1", f.tenantT1, "volunteer_hours", dec(60))
		require.NoError(t, err)
		f.snap.Rules = []*EliminationRule{rule}

		adj, err := NewConsolAdjustment(f.orgID, MustParsePeriod("2024-01"), "volunteer_hours", &f.unitC.ID, dec(10), dec(10), "EUR", "manual correction")
		require.NoError(t, err)
		require.NoError(t, adj.Publish(uuid.New()))
		f.snap.Adjustments = []*ConsolAdjustment{adj}

		out, err := f.runner(t, &memCommitter{}).Execute(ctx, f.newRun(), f.snap)
		require.NoError(t, err)

		assert.True(t, factFor(out.Facts, f.unitC.ID, "volunteer_hours").ValueBase.Equal(dec(10)))
		assert.True(t, factFor(out.Facts, f.root.ID, "volunteer_hours").ValueBase.Equal(dec(10)))
		require.Len(t, out.Adjustments, 1)
	})
}

func TestConsolidationRunnerIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newScenarioFixture(t)

	first, err := f.runner(t, &memCommitter{}).Execute(ctx, f.newRun(), f.snap)
	require.NoError(t, err)
	second, err := f.runner(t, &memCommitter{}).Execute(ctx, f.newRun(), f.snap)
	require.NoError(t, err)

	require.Equal(t, len(first.Facts), len(second.Facts))
	for i := range first.Facts {
		a, b := first.Facts[i], second.Facts[i]
		assert.Equal(t, a.OrgUnitID, b.OrgUnitID)
		assert.Equal(t, a.Metric, b.Metric)
		assert.True(t, a.ValueBase.Equal(*b.ValueBase))
		assert.True(t, a.ValueLocal.Equal(b.ValueLocal))
	}
}

func TestConsolidationRunnerFailurePaths(t *testing.T) {
	ctx := context.Background()

	t.Run("missing fx rate degrades to a warning for normal metrics", func(t *testing.T) {
		f := newScenarioFixture(t)
		f.source.set(f.tenantT1, "volunteer_hours", RawMetricValue{Value: dec(100), Currency: "CHF"})

		out, err := f.runner(t, &memCommitter{}).Execute(ctx, f.newRun(), f.snap)
		require.NoError(t, err)
		require.Len(t, out.Warnings, 1)
		assert.Contains(t, out.Warnings[0], "contribution excluded")
		assert.True(t, factFor(out.Facts, f.root.ID, "volunteer_hours").ValueBase.IsZero())
	})

	t.Run("missing fx rate fails the run for required complete metrics", func(t *testing.T) {
		f := newScenarioFixture(t)
		f.source.set(f.tenantT1, "donations", RawMetricValue{Value: dec(100), Currency: "CHF"})
		f.snap.Metrics = []string{"donations"}
		committer := &memCommitter{}

		run := f.newRun()
		_, err := f.runner(t, committer).Execute(ctx, run, f.snap)
		require.Error(t, err)
		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Empty(t, committer.committed, "no facts written on failure")
	})

	t.Run("empty scope fails before any facts", func(t *testing.T) {
		f := newScenarioFixture(t)
		f.root.Deactivate()
		f.unitC.Deactivate()
		committer := &memCommitter{}

		run := f.newRun()
		_, err := f.runner(t, committer).Execute(ctx, run, f.snap)
		assert.ErrorIs(t, err, ErrScopeEmpty)
		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Empty(t, committer.committed)
	})

	t.Run("cancellation fails the run with no facts", func(t *testing.T) {
		f := newScenarioFixture(t)
		committer := &memCommitter{}
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		run := f.newRun()
		_, err := f.runner(t, committer).Execute(cancelCtx, run, f.snap)
		require.Error(t, err)
		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Contains(t, run.ErrorMessage, "cancelled")
		assert.Empty(t, committer.committed)
	})

	t.Run("commit conflict keeps the operator's terminal state", func(t *testing.T) {
		f := newScenarioFixture(t)
		committer := &memCommitter{commitErr: ErrRunStateChanged}

		run := f.newRun()
		_, err := f.runner(t, committer).Execute(ctx, run, f.snap)
		require.ErrorIs(t, err, ErrRunStateChanged)
		assert.Equal(t, RunStatusFailed, run.Status)
		assert.Contains(t, run.ErrorMessage, "cancelled")
		assert.Empty(t, committer.committed)
		// Only the start of the run was persisted; the operator's row is
		// never overwritten by the losing commit.
		assert.Equal(t, []RunStatus{RunStatusRunning}, committer.saves)
	})

	t.Run("step results are collected for completed runs", func(t *testing.T) {
		f := newScenarioFixture(t)
		run := f.newRun()
		out, err := f.runner(t, &memCommitter{}).Execute(ctx, run, f.snap)
		require.NoError(t, err)

		require.Len(t, out.StepResults, 6)
		names := make([]string, 0, 6)
		for _, sr := range out.StepResults {
			names = append(names, sr.Step)
			assert.Equal(t, StepStatusCompleted, sr.Status)
		}
		assert.Equal(t, []string{"collect", "convert", "eliminate", "adjust", "rollup", "commit"}, names)
	})
}
