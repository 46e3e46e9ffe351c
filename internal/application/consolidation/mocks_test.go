package consolidation

import (
	"context"
	"sync"
	"time"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockOrgUnitRepository is a mock implementation of OrgUnitRepository
type MockOrgUnitRepository struct {
	mock.Mock
}

func (m *MockOrgUnitRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.OrgUnit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.OrgUnit), args.Error(1)
}

func (m *MockOrgUnitRepository) FindByCode(ctx context.Context, orgID uuid.UUID, code string) (*consolidation.OrgUnit, error) {
	args := m.Called(ctx, orgID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.OrgUnit), args.Error(1)
}

func (m *MockOrgUnitRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.OrgUnit, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.OrgUnit), args.Error(1)
}

func (m *MockOrgUnitRepository) Save(ctx context.Context, unit *consolidation.OrgUnit) error {
	args := m.Called(ctx, unit)
	return args.Error(0)
}

func (m *MockOrgUnitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOrgUnitRepository) ExistsByCode(ctx context.Context, orgID uuid.UUID, code string) (bool, error) {
	args := m.Called(ctx, orgID, code)
	return args.Bool(0), args.Error(1)
}

// MockMemberRepository is a mock implementation of OrgUnitMemberRepository
type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.OrgUnitMember, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.OrgUnitMember), args.Error(1)
}

func (m *MockMemberRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.OrgUnitMember, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.OrgUnitMember), args.Error(1)
}

func (m *MockMemberRepository) FindByOrgUnit(ctx context.Context, orgUnitID uuid.UUID) ([]*consolidation.OrgUnitMember, error) {
	args := m.Called(ctx, orgUnitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.OrgUnitMember), args.Error(1)
}

func (m *MockMemberRepository) FindByTenant(ctx context.Context, orgID, tenantID uuid.UUID) ([]*consolidation.OrgUnitMember, error) {
	args := m.Called(ctx, orgID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.OrgUnitMember), args.Error(1)
}

func (m *MockMemberRepository) Save(ctx context.Context, member *consolidation.OrgUnitMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMemberRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockRuleRepository is a mock implementation of EliminationRuleRepository
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.EliminationRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.EliminationRule), args.Error(1)
}

func (m *MockRuleRepository) FindActiveForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.EliminationRule, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.EliminationRule), args.Error(1)
}

func (m *MockRuleRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.EliminationRule, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.EliminationRule), args.Error(1)
}

func (m *MockRuleRepository) Save(ctx context.Context, rule *consolidation.EliminationRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// MockAdjustmentRepository is a mock implementation of ConsolAdjustmentRepository
type MockAdjustmentRepository struct {
	mock.Mock
}

func (m *MockAdjustmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.ConsolAdjustment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.ConsolAdjustment), args.Error(1)
}

func (m *MockAdjustmentRepository) FindPublishedForPeriod(ctx context.Context, orgID uuid.UUID, period string) ([]*consolidation.ConsolAdjustment, error) {
	args := m.Called(ctx, orgID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.ConsolAdjustment), args.Error(1)
}

func (m *MockAdjustmentRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter consolidation.AdjustmentFilter) ([]*consolidation.ConsolAdjustment, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.ConsolAdjustment), args.Error(1)
}

func (m *MockAdjustmentRepository) MaxVersion(ctx context.Context, orgID uuid.UUID, orgUnitID *uuid.UUID, period, metric string) (int, error) {
	args := m.Called(ctx, orgID, orgUnitID, period, metric)
	return args.Int(0), args.Error(1)
}

func (m *MockAdjustmentRepository) Save(ctx context.Context, adjustment *consolidation.ConsolAdjustment) error {
	args := m.Called(ctx, adjustment)
	return args.Error(0)
}

// MockMetricRepository is a mock implementation of MetricDefinitionRepository
type MockMetricRepository struct {
	mock.Mock
}

func (m *MockMetricRepository) FindByKey(ctx context.Context, orgID uuid.UUID, key string) (*consolidation.MetricDefinition, error) {
	args := m.Called(ctx, orgID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.MetricDefinition), args.Error(1)
}

func (m *MockMetricRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID) ([]*consolidation.MetricDefinition, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.MetricDefinition), args.Error(1)
}

func (m *MockMetricRepository) Save(ctx context.Context, orgID uuid.UUID, def *consolidation.MetricDefinition) error {
	args := m.Called(ctx, orgID, def)
	return args.Error(0)
}

func (m *MockMetricRepository) Delete(ctx context.Context, orgID uuid.UUID, key string) error {
	args := m.Called(ctx, orgID, key)
	return args.Error(0)
}

// MockRunRepository is a mock implementation of ConsolRunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*consolidation.ConsolRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.ConsolRun), args.Error(1)
}

func (m *MockRunRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter consolidation.RunFilter) ([]*consolidation.ConsolRun, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.ConsolRun), args.Error(1)
}

func (m *MockRunRepository) FindActive(ctx context.Context, orgID uuid.UUID, period string) (*consolidation.ConsolRun, error) {
	args := m.Called(ctx, orgID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.ConsolRun), args.Error(1)
}

func (m *MockRunRepository) Save(ctx context.Context, run *consolidation.ConsolRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// MockFactRepository is a mock implementation of ConsolFactRepository
type MockFactRepository struct {
	mock.Mock
}

func (m *MockFactRepository) FindAllForOrg(ctx context.Context, orgID uuid.UUID, filter consolidation.FactFilter) ([]*consolidation.ConsolFact, error) {
	args := m.Called(ctx, orgID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.ConsolFact), args.Error(1)
}

func (m *MockFactRepository) FindByRunID(ctx context.Context, runID uuid.UUID) ([]*consolidation.ConsolFact, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*consolidation.ConsolFact), args.Error(1)
}

func (m *MockFactRepository) FindByKey(ctx context.Context, orgID, orgUnitID uuid.UUID, period, metric string) (*consolidation.ConsolFact, error) {
	args := m.Called(ctx, orgID, orgUnitID, period, metric)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*consolidation.ConsolFact), args.Error(1)
}

// =============================================================================
// Simple fakes
// =============================================================================

// fakeRunLock is an in-memory RunLock with a switchable contention flag.
type fakeRunLock struct {
	held     map[string]bool
	acquires int
	releases int
}

func newFakeRunLock() *fakeRunLock {
	return &fakeRunLock{held: make(map[string]bool)}
}

func (l *fakeRunLock) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.acquires++
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeRunLock) Release(_ context.Context, key string) error {
	l.releases++
	delete(l.held, key)
	return nil
}

func (l *fakeRunLock) Close() error { return nil }

// fakeSource serves raw metric values keyed "tenant|metric".
type fakeSource struct {
	values map[string]consolidation.RawMetricValue
}

func newFakeSource() *fakeSource {
	return &fakeSource{values: make(map[string]consolidation.RawMetricValue)}
}

func (s *fakeSource) set(tenantID uuid.UUID, metric string, v consolidation.RawMetricValue) {
	s.values[tenantID.String()+"|"+metric] = v
}

func (s *fakeSource) GetTenantMetric(_ context.Context, tenantID uuid.UUID, metric string, _ consolidation.Period) (consolidation.RawMetricValue, error) {
	v, ok := s.values[tenantID.String()+"|"+metric]
	if !ok {
		return consolidation.RawMetricValue{}, shared.ErrNotFound
	}
	return v, nil
}

// fakeFxLookup always misses; period fixtures in this package stay in the
// base currency.
type fakeFxLookup struct{}

func (fakeFxLookup) FindOnOrBefore(_ context.Context, _, _ valueobject.Currency, _ time.Time) (*consolidation.FxRate, error) {
	return nil, shared.ErrNotFound
}

// fakeCommitter records committed runs and facts.
type fakeCommitter struct {
	saved     []consolidation.RunStatus
	committed []*consolidation.ConsolFact
	lastRun   *consolidation.ConsolRun
}

func (c *fakeCommitter) SaveRun(_ context.Context, run *consolidation.ConsolRun) error {
	c.saved = append(c.saved, run.Status)
	c.lastRun = run
	return nil
}

func (c *fakeCommitter) CommitCompleted(_ context.Context, run *consolidation.ConsolRun, facts []*consolidation.ConsolFact) error {
	c.saved = append(c.saved, run.Status)
	c.committed = facts
	return nil
}

// blockingSource signals when the first metric read starts, then blocks
// until the caller's context is cancelled.
type blockingSource struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingSource() *blockingSource {
	return &blockingSource{started: make(chan struct{})}
}

func (s *blockingSource) GetTenantMetric(ctx context.Context, _ uuid.UUID, _ string, _ consolidation.Period) (consolidation.RawMetricValue, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return consolidation.RawMetricValue{}, ctx.Err()
}

// fakeArchiver records archived outputs.
type fakeArchiver struct {
	archived int
	lastKey  string
}

func (a *fakeArchiver) ArchiveRunOutput(_ context.Context, orgID uuid.UUID, period string, _ *consolidation.ConsolidationOutput) error {
	a.archived++
	a.lastKey = orgID.String() + "/" + period
	return nil
}

// fakeSignerArchiver is a fakeArchiver that can also issue download URLs.
type fakeSignerArchiver struct {
	fakeArchiver
	url string
}

func (a *fakeSignerArchiver) DownloadURL(_ context.Context, _ uuid.UUID, _ string, _ uuid.UUID, _ time.Duration) (string, time.Time, error) {
	return a.url, time.Now().Add(time.Hour), nil
}
