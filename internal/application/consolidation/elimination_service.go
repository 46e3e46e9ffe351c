package consolidation

import (
	"context"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EliminationRuleService manages elimination rules. Each rule is one tagged
// variant, validated at construction; free-form rule definitions never reach
// the engine.
type EliminationRuleService struct {
	ruleRepo consolidation.EliminationRuleRepository
}

// NewEliminationRuleService creates a new EliminationRuleService
func NewEliminationRuleService(ruleRepo consolidation.EliminationRuleRepository) *EliminationRuleService {
	return &EliminationRuleService{ruleRepo: ruleRepo}
}

// Create builds the requested rule variant and persists it
func (s *EliminationRuleService) Create(ctx context.Context, orgID uuid.UUID, req CreateEliminationRuleRequest) (*EliminationRuleResponse, error) {
	var (
		rule *consolidation.EliminationRule
		err  error
	)
	switch consolidation.EliminationRuleType(req.RuleType) {
	case consolidation.RuleTypeEventSource:
		rule, err = consolidation.NewEventSourceRule(orgID, req.Name, req.SourcePattern)
	case consolidation.RuleTypeTenantPair:
		if req.TenantA == nil || req.TenantB == nil {
			return nil, consolidation.ErrEliminationRuleInvalid
		}
		rule, err = consolidation.NewTenantPairRule(orgID, req.Name, *req.TenantA, *req.TenantB, req.PairMetric)
	case consolidation.RuleTypeManual:
		if req.TenantID == nil || req.Amount == nil {
			return nil, consolidation.ErrEliminationRuleInvalid
		}
		rule, err = consolidation.NewManualEliminationRule(orgID, req.Name, *req.TenantID, req.Metric, *req.Amount)
	case consolidation.RuleTypeTagBased:
		rule, err = consolidation.NewTagBasedRule(orgID, req.Name, req.Tags)
	default:
		return nil, shared.NewDomainError("INVALID_INPUT", "Unknown elimination rule type "+req.RuleType)
	}
	if err != nil {
		return nil, err
	}

	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		return nil, err
	}
	response := ToEliminationRuleResponse(rule)
	return &response, nil
}

// Deactivate excludes the rule from future runs. Past facts are untouched;
// rules are never deleted.
func (s *EliminationRuleService) Deactivate(ctx context.Context, orgID, ruleID uuid.UUID) error {
	rule, err := s.findRuleForOrg(ctx, orgID, ruleID)
	if err != nil {
		return err
	}
	rule.Deactivate()
	return s.ruleRepo.Save(ctx, rule)
}

// Get retrieves one rule
func (s *EliminationRuleService) Get(ctx context.Context, orgID, ruleID uuid.UUID) (*EliminationRuleResponse, error) {
	rule, err := s.findRuleForOrg(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	response := ToEliminationRuleResponse(rule)
	return &response, nil
}

// List returns the org's rules in creation order, the order the engine
// applies them in
func (s *EliminationRuleService) List(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]EliminationRuleResponse, error) {
	var (
		rules []*consolidation.EliminationRule
		err   error
	)
	if activeOnly {
		rules, err = s.ruleRepo.FindActiveForOrg(ctx, orgID)
	} else {
		rules, err = s.ruleRepo.FindAllForOrg(ctx, orgID)
	}
	if err != nil {
		return nil, err
	}
	responses := make([]EliminationRuleResponse, 0, len(rules))
	for _, r := range rules {
		responses = append(responses, ToEliminationRuleResponse(r))
	}
	return responses, nil
}

// Preview applies the org's active rules to hypothetical contributions
// without persisting anything. Used by the API to answer "what would this
// rule set remove".
func (s *EliminationRuleService) Preview(ctx context.Context, orgID uuid.UUID, contributions []consolidation.TenantContribution) ([]consolidation.EliminationMatch, decimal.Decimal, error) {
	rules, err := s.ruleRepo.FindActiveForOrg(ctx, orgID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	matches := consolidation.NewEliminationEngine(rules).Apply(contributions)
	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.Amount)
	}
	return matches, total, nil
}

func (s *EliminationRuleService) findRuleForOrg(ctx context.Context, orgID, ruleID uuid.UUID) (*consolidation.EliminationRule, error) {
	rule, err := s.ruleRepo.FindByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	return rule, nil
}
