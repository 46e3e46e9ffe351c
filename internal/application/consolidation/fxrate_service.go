package consolidation

import (
	"context"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/rollup/backend/internal/domain/shared/valueobject"
)

// FxRateService manages recorded exchange rates. Rates are append-only: a
// correction is a new rate on a later day, never an overwrite.
type FxRateService struct {
	fxRepo consolidation.FxRateRepository
}

// NewFxRateService creates a new FxRateService
func NewFxRateService(fxRepo consolidation.FxRateRepository) *FxRateService {
	return &FxRateService{fxRepo: fxRepo}
}

// Record records a rate for a pair and day. Duplicate (day, base, quote)
// fails with ALREADY_EXISTS from the repository.
func (s *FxRateService) Record(ctx context.Context, req RecordFxRateRequest) (*FxRateResponse, error) {
	rate, err := consolidation.NewFxRate(req.Day, valueobject.Currency(req.Base), valueobject.Currency(req.Quote), req.Rate)
	if err != nil {
		return nil, err
	}
	if err := s.fxRepo.Save(ctx, rate); err != nil {
		return nil, err
	}
	response := ToFxRateResponse(rate)
	return &response, nil
}

// ListForPair returns a pair's rates, most recent first
func (s *FxRateService) ListForPair(ctx context.Context, base, quote string, limit int) ([]FxRateResponse, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rates, err := s.fxRepo.FindAllForPair(ctx, valueobject.Currency(base), valueobject.Currency(quote), limit)
	if err != nil {
		return nil, err
	}
	responses := make([]FxRateResponse, 0, len(rates))
	for _, r := range rates {
		responses = append(responses, ToFxRateResponse(r))
	}
	return responses, nil
}
