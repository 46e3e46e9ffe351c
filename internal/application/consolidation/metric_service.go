package consolidation

import (
	"context"

	"github.com/rollup/backend/internal/domain/consolidation"
	"github.com/google/uuid"
)

// MetricService manages the metric definitions a run's registry is built
// from.
type MetricService struct {
	metricRepo consolidation.MetricDefinitionRepository
}

// NewMetricService creates a new MetricService
func NewMetricService(metricRepo consolidation.MetricDefinitionRepository) *MetricService {
	return &MetricService{metricRepo: metricRepo}
}

// Save creates or updates a metric definition
func (s *MetricService) Save(ctx context.Context, orgID uuid.UUID, req SaveMetricRequest) (*MetricResponse, error) {
	def := consolidation.MetricDefinition{
		Key:              req.Key,
		Name:             req.Name,
		Aggregation:      consolidation.Aggregation(req.Aggregation),
		Decimals:         req.Decimals,
		Unit:             req.Unit,
		RequiredComplete: req.RequiredComplete,
	}
	// Registry construction validates the definition.
	if _, err := consolidation.NewMetricRegistry([]consolidation.MetricDefinition{def}); err != nil {
		return nil, err
	}
	if err := s.metricRepo.Save(ctx, orgID, &def); err != nil {
		return nil, err
	}
	response := ToMetricResponse(def)
	return &response, nil
}

// Get retrieves one definition
func (s *MetricService) Get(ctx context.Context, orgID uuid.UUID, key string) (*MetricResponse, error) {
	def, err := s.metricRepo.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, err
	}
	response := ToMetricResponse(*def)
	return &response, nil
}

// List returns every definition of the org
func (s *MetricService) List(ctx context.Context, orgID uuid.UUID) ([]MetricResponse, error) {
	defs, err := s.metricRepo.FindAllForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	responses := make([]MetricResponse, 0, len(defs))
	for _, d := range defs {
		responses = append(responses, ToMetricResponse(*d))
	}
	return responses, nil
}

// Delete removes a definition. Existing facts keep their metric key.
func (s *MetricService) Delete(ctx context.Context, orgID uuid.UUID, key string) error {
	return s.metricRepo.Delete(ctx, orgID, key)
}

// RegistryForOrg loads the org's definitions into a registry
func (s *MetricService) RegistryForOrg(ctx context.Context, orgID uuid.UUID) (*consolidation.MetricRegistry, error) {
	defs, err := s.metricRepo.FindAllForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	plain := make([]consolidation.MetricDefinition, 0, len(defs))
	for _, d := range defs {
		plain = append(plain, *d)
	}
	return consolidation.NewMetricRegistry(plain)
}
