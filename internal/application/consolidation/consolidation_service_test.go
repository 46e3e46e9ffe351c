package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// consolidationFixture wires a ConsolidationService over mocks and fakes
// with a two-unit hierarchy: Root -> Unit-C, tenant T1 at 60%.
type consolidationFixture struct {
	orgID     uuid.UUID
	root      *consolidation.OrgUnit
	unitC     *consolidation.OrgUnit
	tenant    uuid.UUID
	unitRepo  *MockOrgUnitRepository
	members   *MockMemberRepository
	rules     *MockRuleRepository
	adjs      *MockAdjustmentRepository
	runs      *MockRunRepository
	facts     *MockFactRepository
	metrics   *MockMetricRepository
	source    *fakeSource
	committer *fakeCommitter
	lock      *fakeRunLock
	service   *ConsolidationService
}

func newConsolidationFixture(t *testing.T) *consolidationFixture {
	t.Helper()
	f := &consolidationFixture{
		orgID:     uuid.New(),
		tenant:    uuid.New(),
		unitRepo:  new(MockOrgUnitRepository),
		members:   new(MockMemberRepository),
		rules:     new(MockRuleRepository),
		adjs:      new(MockAdjustmentRepository),
		runs:      new(MockRunRepository),
		facts:     new(MockFactRepository),
		metrics:   new(MockMetricRepository),
		source:    newFakeSource(),
		committer: &fakeCommitter{},
		lock:      newFakeRunLock(),
	}
	f.root = newUnit(t, f.orgID, nil, "Root", "ROOT")
	f.unitC = newUnit(t, f.orgID, &f.root.ID, "Unit C", "UNIT-C")

	f.source.set(f.tenant, "volunteer_hours", consolidation.RawMetricValue{Value: decimal.NewFromInt(100), Currency: "EUR"})

	f.service = NewConsolidationService(
		f.unitRepo, f.members, f.rules, f.adjs, f.runs, f.facts,
		NewMetricService(f.metrics),
		f.source, fakeFxLookup{}, f.committer, f.lock, nil,
		ConsolidationServiceConfig{Workers: 2, DefaultBaseCurrency: "EUR"},
	)
	return f
}

func (f *consolidationFixture) member(t *testing.T) *consolidation.OrgUnitMember {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := consolidation.NewOrgUnitMember(f.orgID, f.unitC.ID, f.tenant, decimal.NewFromInt(60), start, nil)
	require.NoError(t, err)
	return m
}

func (f *consolidationFixture) expectSnapshot(t *testing.T) {
	t.Helper()
	f.unitRepo.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.OrgUnit{f.root, f.unitC}, nil)
	f.members.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.OrgUnitMember{f.member(t)}, nil)
	f.rules.On("FindActiveForOrg", mock.Anything, f.orgID).Return([]*consolidation.EliminationRule{}, nil)
	f.adjs.On("FindPublishedForPeriod", mock.Anything, f.orgID, "2024-01").Return([]*consolidation.ConsolAdjustment{}, nil)
	f.metrics.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.MetricDefinition{
		{Key: "volunteer_hours", Name: "Volunteer Hours", Aggregation: consolidation.AggregationSum, Decimals: 2},
	}, nil)
}

func TestConsolidationServiceRun(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path commits weighted facts and archives the output", func(t *testing.T) {
		f := newConsolidationFixture(t)
		f.expectSnapshot(t)
		f.runs.On("FindActive", mock.Anything, f.orgID, "2024-01").Return(nil, shared.ErrNotFound)
		archiver := &fakeArchiver{}
		f.service.SetOutputArchiver(archiver)

		resp, err := f.service.Run(ctx, f.orgID, RunConsolidationRequest{Period: "2024-01"})
		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", resp.Status)
		assert.Equal(t, 2, resp.Stats.FactsWritten)
		assert.Len(t, f.committer.committed, 2)
		assert.Equal(t, 1, archiver.archived)
		assert.Equal(t, f.orgID.String()+"/2024-01", archiver.lastKey)
		assert.Equal(t, 1, f.lock.releases, "lock released after the run")
	})

	t.Run("a second run for the same org and period is rejected with no record", func(t *testing.T) {
		f := newConsolidationFixture(t)
		f.expectSnapshot(t)
		f.lock.held["consol:run:"+f.orgID.String()+":2024-01"] = true

		_, err := f.service.Run(ctx, f.orgID, RunConsolidationRequest{Period: "2024-01"})
		assert.ErrorIs(t, err, consolidation.ErrRunAlreadyInProgress)
		assert.Empty(t, f.committer.saved, "no run record created")
	})

	t.Run("an active run in the store is rejected even with the lock free", func(t *testing.T) {
		f := newConsolidationFixture(t)
		f.expectSnapshot(t)
		active := consolidation.NewConsolRun(f.orgID, consolidation.MustParsePeriod("2024-01"), consolidation.RunScope{}, time.Now(), uuid.New())
		f.runs.On("FindActive", mock.Anything, f.orgID, "2024-01").Return(active, nil)

		_, err := f.service.Run(ctx, f.orgID, RunConsolidationRequest{Period: "2024-01"})
		assert.ErrorIs(t, err, consolidation.ErrRunAlreadyInProgress)
		assert.Equal(t, 1, f.lock.releases, "lock is not leaked on rejection")
	})

	t.Run("a broken forest never creates a run record", func(t *testing.T) {
		f := newConsolidationFixture(t)
		f.unitC.ParentID = &f.unitC.ID
		f.expectSnapshot(t)

		_, err := f.service.Run(ctx, f.orgID, RunConsolidationRequest{Period: "2024-01"})
		require.Error(t, err)
		domainErr := &shared.DomainError{}
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "CYCLE_DETECTED", domainErr.Code)
		assert.Equal(t, 0, f.lock.acquires, "rejected before locking")
		assert.Empty(t, f.committer.saved)
	})

	t.Run("no metric definitions rejects the run", func(t *testing.T) {
		f := newConsolidationFixture(t)
		f.unitRepo.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.OrgUnit{f.root, f.unitC}, nil)
		f.members.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.OrgUnitMember{}, nil)
		f.rules.On("FindActiveForOrg", mock.Anything, f.orgID).Return([]*consolidation.EliminationRule{}, nil)
		f.adjs.On("FindPublishedForPeriod", mock.Anything, f.orgID, "2024-01").Return([]*consolidation.ConsolAdjustment{}, nil)
		f.metrics.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.MetricDefinition{}, nil)
		f.runs.On("FindActive", mock.Anything, f.orgID, "2024-01").Return(nil, shared.ErrNotFound)

		_, err := f.service.Run(ctx, f.orgID, RunConsolidationRequest{Period: "2024-01"})
		require.Error(t, err)
		domainErr := &shared.DomainError{}
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("overcommitted shares run to completion with a warning", func(t *testing.T) {
		f := newConsolidationFixture(t)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		m1 := f.member(t)
		m2, err := consolidation.NewOrgUnitMember(f.orgID, f.root.ID, f.tenant, decimal.NewFromInt(70), start, nil)
		require.NoError(t, err)

		f.unitRepo.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.OrgUnit{f.root, f.unitC}, nil)
		f.members.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.OrgUnitMember{m1, m2}, nil)
		f.rules.On("FindActiveForOrg", mock.Anything, f.orgID).Return([]*consolidation.EliminationRule{}, nil)
		f.adjs.On("FindPublishedForPeriod", mock.Anything, f.orgID, "2024-01").Return([]*consolidation.ConsolAdjustment{}, nil)
		f.metrics.On("FindAllForOrg", mock.Anything, f.orgID).Return([]*consolidation.MetricDefinition{
			{Key: "volunteer_hours", Name: "Volunteer Hours", Aggregation: consolidation.AggregationSum, Decimals: 2},
		}, nil)
		f.runs.On("FindActive", mock.Anything, f.orgID, "2024-01").Return(nil, shared.ErrNotFound)

		resp, err := f.service.Run(ctx, f.orgID, RunConsolidationRequest{Period: "2024-01"})
		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", resp.Status)
		require.NotEmpty(t, resp.Warnings)
		assert.Contains(t, resp.Warnings[0], "130")
	})

	t.Run("invalid period is rejected before any work", func(t *testing.T) {
		f := newConsolidationFixture(t)
		_, err := f.service.Run(ctx, f.orgID, RunConsolidationRequest{Period: "2024-13"})
		require.Error(t, err)
	})
}

func TestConsolidationServiceQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel fails a running run", func(t *testing.T) {
		f := newConsolidationFixture(t)
		run := consolidation.NewConsolRun(f.orgID, consolidation.MustParsePeriod("2024-01"), consolidation.RunScope{}, time.Now(), uuid.New())
		require.NoError(t, run.Start())

		f.runs.On("FindByID", ctx, run.ID).Return(run, nil)
		f.runs.On("Save", ctx, run).Return(nil)

		resp, err := f.service.CancelRun(ctx, f.orgID, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "FAILED", resp.Status)
		assert.Contains(t, resp.ErrorMessage, "cancelled")
	})

	t.Run("cancel stops an in-flight run on this instance", func(t *testing.T) {
		f := newConsolidationFixture(t)
		f.expectSnapshot(t)
		f.runs.On("FindActive", mock.Anything, f.orgID, "2024-01").Return(nil, shared.ErrNotFound)

		src := newBlockingSource()
		f.service.source = src

		errCh := make(chan error, 1)
		go func() {
			_, err := f.service.Run(context.Background(), f.orgID, RunConsolidationRequest{Period: "2024-01"})
			errCh <- err
		}()

		// The pipeline has persisted its running state before the first
		// metric read, so the started signal makes lastRun safe to read.
		<-src.started
		running := f.committer.lastRun
		require.NotNil(t, running)

		// The operator loads their own copy of the run, as a separate
		// request would.
		loaded := *running
		f.runs.On("FindByID", mock.Anything, running.ID).Return(&loaded, nil)
		f.runs.On("Save", mock.Anything, mock.Anything).Return(nil)

		resp, err := f.service.CancelRun(ctx, f.orgID, running.ID)
		require.NoError(t, err)
		assert.Equal(t, "FAILED", resp.Status)

		require.Error(t, <-errCh, "the in-flight pipeline stops")
		assert.Empty(t, f.committer.committed, "no facts written after cancel")
		assert.NotContains(t, f.committer.saved, consolidation.RunStatusCompleted)
	})

	t.Run("cancel of a completed run is rejected", func(t *testing.T) {
		f := newConsolidationFixture(t)
		run := consolidation.NewConsolRun(f.orgID, consolidation.MustParsePeriod("2024-01"), consolidation.RunScope{}, time.Now(), uuid.New())
		require.NoError(t, run.Start())
		require.NoError(t, run.Complete(consolidation.RunStats{}))

		f.runs.On("FindByID", ctx, run.ID).Return(run, nil)

		_, err := f.service.CancelRun(ctx, f.orgID, run.ID)
		require.Error(t, err)
	})

	t.Run("run facts are scoped to the org", func(t *testing.T) {
		f := newConsolidationFixture(t)
		foreign := consolidation.NewConsolRun(uuid.New(), consolidation.MustParsePeriod("2024-01"), consolidation.RunScope{}, time.Now(), uuid.New())
		f.runs.On("FindByID", ctx, foreign.ID).Return(foreign, nil)

		_, err := f.service.GetRunFacts(ctx, f.orgID, foreign.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestConsolidationServiceGetRunOutputURL(t *testing.T) {
	ctx := context.Background()

	completedRun := func(f *consolidationFixture) *consolidation.ConsolRun {
		run := consolidation.NewConsolRun(f.orgID, consolidation.MustParsePeriod("2024-01"), consolidation.RunScope{}, time.Now(), uuid.New())
		require.NoError(t, run.Start())
		require.NoError(t, run.Complete(consolidation.RunStats{}))
		return run
	}

	t.Run("returns a signed URL for a completed run", func(t *testing.T) {
		f := newConsolidationFixture(t)
		run := completedRun(f)
		f.runs.On("FindByID", ctx, run.ID).Return(run, nil)
		f.service.SetOutputArchiver(&fakeSignerArchiver{url: "https://archive.local/output.json"})

		resp, err := f.service.GetRunOutputURL(ctx, f.orgID, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://archive.local/output.json", resp.URL)
		assert.False(t, resp.ExpiresAt.IsZero())
	})

	t.Run("rejects runs that are not completed", func(t *testing.T) {
		f := newConsolidationFixture(t)
		run := consolidation.NewConsolRun(f.orgID, consolidation.MustParsePeriod("2024-01"), consolidation.RunScope{}, time.Now(), uuid.New())
		f.runs.On("FindByID", ctx, run.ID).Return(run, nil)
		f.service.SetOutputArchiver(&fakeSignerArchiver{url: "https://archive.local/output.json"})

		_, err := f.service.GetRunOutputURL(ctx, f.orgID, run.ID)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("reports not found when the archiver cannot sign", func(t *testing.T) {
		f := newConsolidationFixture(t)
		run := completedRun(f)
		f.runs.On("FindByID", ctx, run.ID).Return(run, nil)
		f.service.SetOutputArchiver(&fakeArchiver{})

		_, err := f.service.GetRunOutputURL(ctx, f.orgID, run.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
