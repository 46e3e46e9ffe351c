package consolidation

import "github.com/rollup/backend/internal/domain/shared"

// Error codes surfaced by the consolidation engine. Structural hierarchy
// errors (cycle, orphan) are pre-flight failures and never create a run.
var (
	ErrCycleDetected             = shared.NewDomainError("CYCLE_DETECTED", "Org unit hierarchy contains a cycle")
	ErrOrphanedUnit              = shared.NewDomainError("ORPHANED_UNIT", "Org unit references a parent that does not exist")
	ErrMissingFxRate             = shared.NewDomainError("MISSING_FX_RATE", "No FX rate available for currency pair on or before the requested date")
	ErrInvalidPercentShare       = shared.NewDomainError("INVALID_PERCENT_SHARE", "Membership percent share must be between 0 and 100")
	ErrAdjustmentVersionConflict = shared.NewDomainError("ADJUSTMENT_VERSION_CONFLICT", "A newer version of this adjustment already exists")
	ErrEliminationRuleInvalid    = shared.NewDomainError("ELIMINATION_RULE_INVALID", "Elimination rule pattern is invalid for its type")
	ErrRunAlreadyInProgress      = shared.NewDomainError("RUN_ALREADY_IN_PROGRESS", "A consolidation run is already in progress for this org and period")
	ErrRunStateChanged           = shared.NewDomainError("CONCURRENCY_CONFLICT", "Run was moved to a terminal state by another writer; no facts were committed")
	ErrScopeEmpty                = shared.NewDomainError("SCOPE_EMPTY", "Resolved consolidation scope contains no org units")
)

// NewCycleError reports the unit at which a cycle was detected.
func NewCycleError(unitCode string) *shared.DomainError {
	return shared.NewDomainError("CYCLE_DETECTED", "Org unit hierarchy contains a cycle through unit "+unitCode)
}

// NewOrphanError reports the unit whose parent could not be resolved.
func NewOrphanError(unitCode string) *shared.DomainError {
	return shared.NewDomainError("ORPHANED_UNIT", "Org unit "+unitCode+" references a parent that does not exist")
}
