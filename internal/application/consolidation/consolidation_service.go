package consolidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/rollup/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutputArchiver persists the full output of a completed run to object
// storage for audit retention. Archiving is best-effort; a failure never
// fails the run.
type OutputArchiver interface {
	// ArchiveRunOutput stores the output JSON under a key derived from the
	// org, period and run id.
	ArchiveRunOutput(ctx context.Context, orgID uuid.UUID, period string, output *consolidation.ConsolidationOutput) error
}

// ArchiveURLSigner is an optional capability of an OutputArchiver: issuing a
// time-limited download URL for an archived run output.
type ArchiveURLSigner interface {
	DownloadURL(ctx context.Context, orgID uuid.UUID, period string, runID uuid.UUID, expiresIn time.Duration) (string, time.Time, error)
}

// ConsolidationServiceConfig tunes run execution.
type ConsolidationServiceConfig struct {
	// Workers bounds metric collection parallelism.
	Workers int
	// DefaultBaseCurrency is used when a run does not name one.
	DefaultBaseCurrency valueobject.Currency
	// LockTTL caps how long a crashed run keeps its (org, period) locked.
	LockTTL time.Duration
}

// ConsolidationService orchestrates consolidation runs: pre-flight
// validation, run serialization per (org, period), snapshot loading, pipeline
// execution and queries over runs and facts.
type ConsolidationService struct {
	unitRepo       consolidation.OrgUnitRepository
	memberRepo     consolidation.OrgUnitMemberRepository
	ruleRepo       consolidation.EliminationRuleRepository
	adjustmentRepo consolidation.ConsolAdjustmentRepository
	runRepo        consolidation.ConsolRunRepository
	factRepo       consolidation.ConsolFactRepository
	metrics        *MetricService
	source         consolidation.MetricSource
	fxLookup       consolidation.FxRateLookup
	committer      consolidation.RunCommitter
	lock           shared.RunLock
	logger         *zap.Logger
	cfg            ConsolidationServiceConfig

	archiver        OutputArchiver
	businessMetrics *telemetry.BusinessMetrics

	// inFlight maps run ids executing on this instance to their pipeline
	// cancel functions, so CancelRun can stop a local run immediately.
	// Cross-instance cancellation relies on the committer's status check.
	mu       sync.Mutex
	inFlight map[uuid.UUID]context.CancelFunc
}

// NewConsolidationService creates a new ConsolidationService
func NewConsolidationService(
	unitRepo consolidation.OrgUnitRepository,
	memberRepo consolidation.OrgUnitMemberRepository,
	ruleRepo consolidation.EliminationRuleRepository,
	adjustmentRepo consolidation.ConsolAdjustmentRepository,
	runRepo consolidation.ConsolRunRepository,
	factRepo consolidation.ConsolFactRepository,
	metrics *MetricService,
	source consolidation.MetricSource,
	fxLookup consolidation.FxRateLookup,
	committer consolidation.RunCommitter,
	lock shared.RunLock,
	logger *zap.Logger,
	cfg ConsolidationServiceConfig,
) *ConsolidationService {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.DefaultBaseCurrency == "" {
		cfg.DefaultBaseCurrency = valueobject.DefaultCurrency
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = shared.DefaultRunLockConfig().TTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolidationService{
		unitRepo:       unitRepo,
		memberRepo:     memberRepo,
		ruleRepo:       ruleRepo,
		adjustmentRepo: adjustmentRepo,
		runRepo:        runRepo,
		factRepo:       factRepo,
		metrics:        metrics,
		source:         source,
		fxLookup:       fxLookup,
		committer:      committer,
		lock:           lock,
		logger:         logger,
		cfg:            cfg,
		inFlight:       make(map[uuid.UUID]context.CancelFunc),
	}
}

// SetOutputArchiver sets the optional run output archiver
func (s *ConsolidationService) SetOutputArchiver(a OutputArchiver) {
	s.archiver = a
}

// SetBusinessMetrics sets the business metrics collector
func (s *ConsolidationService) SetBusinessMetrics(bm *telemetry.BusinessMetrics) {
	s.businessMetrics = bm
}

// Run executes a consolidation run for an org and period. Structural
// hierarchy failures and an already-running period reject the request before
// any run record exists; every later failure leaves a failed run behind.
func (s *ConsolidationService) Run(ctx context.Context, orgID uuid.UUID, req RunConsolidationRequest) (*RunResponse, error) {
	period, err := consolidation.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}

	snap, graphErr := s.loadSnapshot(ctx, orgID, period, req.BaseCurrency)
	if graphErr != nil {
		return nil, graphErr
	}

	// Pre-flight: a broken forest never creates a run record.
	if err := consolidation.NewHierarchyGraph(snap.Units).Validate(); err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("consol:run:%s:%s", orgID, period.Key())
	acquired, err := s.lock.Acquire(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, consolidation.ErrRunAlreadyInProgress
	}
	defer func() {
		if releaseErr := s.lock.Release(context.WithoutCancel(ctx), lockKey); releaseErr != nil {
			s.logger.Warn("failed to release run lock", zap.String("key", lockKey), zap.Error(releaseErr))
		}
	}()

	// The lock guards cross-instance; the active-run check guards against a
	// lock backend reset mid-run.
	if _, err := s.runRepo.FindActive(ctx, orgID, period.Key()); err == nil {
		return nil, consolidation.ErrRunAlreadyInProgress
	} else if !isNotFound(err) {
		return nil, err
	}

	registry, err := s.metrics.RegistryForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(registry.Keys()) == 0 {
		return nil, shared.NewDomainError("INVALID_STATE", "No metric definitions configured for this org")
	}
	snap.Metrics = registry.Keys()

	fxRateDate := period.LastDay()
	if req.FxRateDate != nil {
		fxRateDate = *req.FxRateDate
	}
	triggeredBy := uuid.Nil
	if req.TriggeredBy != nil {
		triggeredBy = *req.TriggeredBy
	}

	scope := consolidation.RunScope{OrgUnitIDs: req.OrgUnitIDs, IncludeDescendants: req.IncludeDescendants}
	run := consolidation.NewConsolRun(orgID, period, scope, fxRateDate, triggeredBy)

	for _, w := range ShareWarnings(snap.Members, period) {
		run.AddWarning(w)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.trackRun(run.ID, cancel)
	defer s.untrackRun(run.ID)

	runner := consolidation.NewConsolidationRunner(s.source, s.fxLookup, registry, s.committer, s.logger, s.cfg.Workers)
	output, runErr := runner.Execute(runCtx, run, snap)

	if s.businessMetrics != nil {
		s.businessMetrics.RecordRun(ctx, orgID, string(run.Status), run.Stats)
	}
	if runErr != nil {
		response := ToRunResponse(run)
		return &response, runErr
	}

	if s.archiver != nil {
		if archiveErr := s.archiver.ArchiveRunOutput(ctx, orgID, period.Key(), output); archiveErr != nil {
			s.logger.Warn("failed to archive run output",
				zap.String("run_id", run.ID.String()), zap.Error(archiveErr))
		}
	}

	response := ToRunResponse(run)
	return &response, nil
}

// GetRun retrieves one run, step results included
func (s *ConsolidationService) GetRun(ctx context.Context, orgID, runID uuid.UUID) (*RunResponse, error) {
	run, err := s.findRunForOrg(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	response := ToRunResponse(run)
	return &response, nil
}

// ListRuns returns runs matching the filter, newest first
func (s *ConsolidationService) ListRuns(ctx context.Context, orgID uuid.UUID, filter RunListFilter) ([]RunResponse, error) {
	domainFilter := consolidation.RunFilter{
		Filter: shared.DefaultFilter(),
		Period: filter.Period,
	}
	if filter.Status != nil {
		status := consolidation.RunStatus(*filter.Status)
		domainFilter.Status = &status
	}
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}

	runs, err := s.runRepo.FindAllForOrg(ctx, orgID, domainFilter)
	if err != nil {
		return nil, err
	}
	responses := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		responses = append(responses, ToRunResponse(r))
	}
	return responses, nil
}

// CancelRun fails a pending or running run. The failed status is persisted
// first, so a commit racing the cancel aborts on the status check; if the
// run is executing on this instance its pipeline context is then cancelled
// and the run stops at the next step boundary.
func (s *ConsolidationService) CancelRun(ctx context.Context, orgID, runID uuid.UUID) (*RunResponse, error) {
	run, err := s.findRunForOrg(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	if err := run.Fail("cancelled by operator"); err != nil {
		return nil, err
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.cancelInFlight(runID)
	response := ToRunResponse(run)
	return &response, nil
}

func (s *ConsolidationService) trackRun(runID uuid.UUID, cancel context.CancelFunc) {
	s.mu.Lock()
	s.inFlight[runID] = cancel
	s.mu.Unlock()
}

func (s *ConsolidationService) untrackRun(runID uuid.UUID) {
	s.mu.Lock()
	cancel, ok := s.inFlight[runID]
	delete(s.inFlight, runID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *ConsolidationService) cancelInFlight(runID uuid.UUID) {
	s.mu.Lock()
	cancel, ok := s.inFlight[runID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// GetRunOutputURL returns a time-limited download URL for a completed run's
// archived output.
func (s *ConsolidationService) GetRunOutputURL(ctx context.Context, orgID, runID uuid.UUID) (*RunOutputURLResponse, error) {
	run, err := s.findRunForOrg(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != consolidation.RunStatusCompleted {
		return nil, shared.NewDomainError("INVALID_STATE", "Run output is only available for completed runs")
	}
	signer, ok := s.archiver.(ArchiveURLSigner)
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "Run output archive is not configured")
	}
	url, expiresAt, err := signer.DownloadURL(ctx, orgID, run.Period, runID, 0)
	if err != nil {
		return nil, err
	}
	return &RunOutputURLResponse{URL: url, ExpiresAt: expiresAt}, nil
}

// ListFacts returns committed facts matching the filter
func (s *ConsolidationService) ListFacts(ctx context.Context, orgID uuid.UUID, filter FactListFilter) ([]FactResponse, error) {
	domainFilter := consolidation.FactFilter{
		Filter:     shared.DefaultFilter(),
		OrgUnitID:  filter.OrgUnitID,
		Metric:     filter.Metric,
		PeriodFrom: filter.PeriodFrom,
		PeriodTo:   filter.PeriodTo,
		RunID:      filter.RunID,
	}
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}

	facts, err := s.factRepo.FindAllForOrg(ctx, orgID, domainFilter)
	if err != nil {
		return nil, err
	}
	responses := make([]FactResponse, 0, len(facts))
	for _, f := range facts {
		responses = append(responses, ToFactResponse(f))
	}
	return responses, nil
}

// GetRunFacts returns the facts a run committed
func (s *ConsolidationService) GetRunFacts(ctx context.Context, orgID, runID uuid.UUID) ([]FactResponse, error) {
	if _, err := s.findRunForOrg(ctx, orgID, runID); err != nil {
		return nil, err
	}
	facts, err := s.factRepo.FindByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}
	responses := make([]FactResponse, 0, len(facts))
	for _, f := range facts {
		responses = append(responses, ToFactResponse(f))
	}
	return responses, nil
}

// loadSnapshot reads every run input in one place before the pipeline
// starts, so mid-run changes to hierarchy, rules or adjustments cannot leak
// into the run.
func (s *ConsolidationService) loadSnapshot(ctx context.Context, orgID uuid.UUID, period consolidation.Period, baseCurrency *string) (consolidation.RunSnapshot, error) {
	units, err := s.unitRepo.FindAllForOrg(ctx, orgID)
	if err != nil {
		return consolidation.RunSnapshot{}, err
	}
	members, err := s.memberRepo.FindAllForOrg(ctx, orgID)
	if err != nil {
		return consolidation.RunSnapshot{}, err
	}
	rules, err := s.ruleRepo.FindActiveForOrg(ctx, orgID)
	if err != nil {
		return consolidation.RunSnapshot{}, err
	}
	adjustments, err := s.adjustmentRepo.FindPublishedForPeriod(ctx, orgID, period.Key())
	if err != nil {
		return consolidation.RunSnapshot{}, err
	}

	base := s.cfg.DefaultBaseCurrency
	if baseCurrency != nil {
		base = valueobject.Currency(*baseCurrency)
	}

	return consolidation.RunSnapshot{
		Units:        units,
		Members:      members,
		Rules:        rules,
		Adjustments:  adjustments,
		BaseCurrency: base,
	}, nil
}

func (s *ConsolidationService) findRunForOrg(ctx context.Context, orgID, runID uuid.UUID) (*consolidation.ConsolRun, error) {
	run, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	return run, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
