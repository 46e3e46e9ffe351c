package consolidation

import (
	"context"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AdjustmentService manages versioned consolidation adjustments. Edits never
// mutate a stored version; every revision is a new row with a higher version,
// and only publishing makes a version visible to runs.
type AdjustmentService struct {
	adjustmentRepo consolidation.ConsolAdjustmentRepository
}

// NewAdjustmentService creates a new AdjustmentService
func NewAdjustmentService(adjustmentRepo consolidation.ConsolAdjustmentRepository) *AdjustmentService {
	return &AdjustmentService{adjustmentRepo: adjustmentRepo}
}

// Create creates a version-1 draft for a key that has no versions yet
func (s *AdjustmentService) Create(ctx context.Context, orgID uuid.UUID, req CreateAdjustmentRequest) (*AdjustmentResponse, error) {
	period, err := consolidation.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}

	max, err := s.adjustmentRepo.MaxVersion(ctx, orgID, req.OrgUnitID, req.Period, req.Metric)
	if err != nil {
		return nil, err
	}
	if max > 0 {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "An adjustment already exists for this key; revise it instead")
	}

	adjustment, err := consolidation.NewConsolAdjustment(orgID, period, req.Metric, req.OrgUnitID,
		req.AmountLocal, req.AmountBase, valueobject.Currency(req.Currency), req.Note)
	if err != nil {
		return nil, err
	}
	if err := s.adjustmentRepo.Save(ctx, adjustment); err != nil {
		return nil, err
	}
	response := ToAdjustmentResponse(adjustment)
	return &response, nil
}

// Revise creates the next draft version of an adjustment. The caller states
// which version it revised from; if a newer version exists the revision is
// rejected so concurrent editors cannot silently overwrite each other.
func (s *AdjustmentService) Revise(ctx context.Context, orgID, adjustmentID uuid.UUID, req ReviseAdjustmentRequest) (*AdjustmentResponse, error) {
	base, err := s.findAdjustmentForOrg(ctx, orgID, adjustmentID)
	if err != nil {
		return nil, err
	}

	max, err := s.adjustmentRepo.MaxVersion(ctx, orgID, base.OrgUnitID, base.Period, base.Metric)
	if err != nil {
		return nil, err
	}
	if req.BaseVersion != max || base.Version != max {
		return nil, consolidation.ErrAdjustmentVersionConflict
	}

	next, err := base.NewVersion(req.AmountLocal, req.AmountBase, req.Note)
	if err != nil {
		return nil, err
	}
	if err := s.adjustmentRepo.Save(ctx, next); err != nil {
		return nil, err
	}
	response := ToAdjustmentResponse(next)
	return &response, nil
}

// Publish makes an adjustment version active for future runs. Publishing a
// version below the stored maximum is rejected; the newest draft wins.
func (s *AdjustmentService) Publish(ctx context.Context, orgID, adjustmentID, publishedBy uuid.UUID) (*AdjustmentResponse, error) {
	adjustment, err := s.findAdjustmentForOrg(ctx, orgID, adjustmentID)
	if err != nil {
		return nil, err
	}

	max, err := s.adjustmentRepo.MaxVersion(ctx, orgID, adjustment.OrgUnitID, adjustment.Period, adjustment.Metric)
	if err != nil {
		return nil, err
	}
	if adjustment.Version < max {
		return nil, consolidation.ErrAdjustmentVersionConflict
	}

	if err := adjustment.Publish(publishedBy); err != nil {
		return nil, err
	}
	if err := s.adjustmentRepo.Save(ctx, adjustment); err != nil {
		return nil, err
	}
	response := ToAdjustmentResponse(adjustment)
	return &response, nil
}

// Get retrieves one adjustment version
func (s *AdjustmentService) Get(ctx context.Context, orgID, adjustmentID uuid.UUID) (*AdjustmentResponse, error) {
	adjustment, err := s.findAdjustmentForOrg(ctx, orgID, adjustmentID)
	if err != nil {
		return nil, err
	}
	response := ToAdjustmentResponse(adjustment)
	return &response, nil
}

// List returns adjustments matching the filter, all versions included
func (s *AdjustmentService) List(ctx context.Context, orgID uuid.UUID, filter AdjustmentListFilter) ([]AdjustmentResponse, error) {
	domainFilter := consolidation.AdjustmentFilter{
		Filter:    shared.DefaultFilter(),
		Period:    filter.Period,
		Metric:    filter.Metric,
		OrgUnitID: filter.OrgUnitID,
		Published: filter.Published,
	}
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}

	adjustments, err := s.adjustmentRepo.FindAllForOrg(ctx, orgID, domainFilter)
	if err != nil {
		return nil, err
	}
	responses := make([]AdjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		responses = append(responses, ToAdjustmentResponse(a))
	}
	return responses, nil
}

func (s *AdjustmentService) findAdjustmentForOrg(ctx context.Context, orgID, adjustmentID uuid.UUID) (*consolidation.ConsolAdjustment, error) {
	adjustment, err := s.adjustmentRepo.FindByID(ctx, adjustmentID)
	if err != nil {
		return nil, err
	}
	if adjustment.OrgID != orgID {
		return nil, shared.ErrNotFound
	}
	return adjustment, nil
}
