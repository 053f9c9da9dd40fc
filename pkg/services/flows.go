package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/registry"
)

// Flows manages flow definitions. Every write passes both graph validation
// and per-node executor schema validation before it reaches the store, so a
// stored flow can always be executed without config surprises.
type Flows struct {
	repo     persistence.FlowRepository
	registry *registry.Registry
	logger   *slog.Logger
}

func NewFlows(repo persistence.FlowRepository, reg *registry.Registry, logger *slog.Logger) *Flows {
	return &Flows{
		repo:     repo,
		registry: reg,
		logger:   logger.With("module", "flows"),
	}
}

// Create validates and stores a new flow. A missing id is generated.
func (s *Flows) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, NewValidationError("flows.create", "FLOW_NIL", "flow cannot be nil", ErrFlowNil)
	}

	if flow.ID == "" {
		flow.ID = "flow-" + uuid.New().String()[:8]
	}

	now := time.Now().UTC()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	if err := s.validate(flow); err != nil {
		return nil, err
	}

	if err := s.repo.SaveFlow(ctx, flow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Created flow", "flow_id", flow.ID, "nodes", len(flow.Nodes))

	return flow, nil
}

// Update validates and replaces an existing flow definition.
func (s *Flows) Update(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, NewValidationError("flows.update", "FLOW_NIL", "flow cannot be nil", ErrFlowNil)
	}

	existing, err := s.repo.FlowByID(ctx, flow.ID)
	if err != nil {
		return nil, err
	}

	flow.CreatedAt = existing.CreatedAt
	flow.UpdatedAt = time.Now().UTC()

	if err := s.validate(flow); err != nil {
		return nil, err
	}

	if err := s.repo.SaveFlow(ctx, flow); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Updated flow", "flow_id", flow.ID)

	return flow, nil
}

func (s *Flows) validate(flow *models.Flow) error {
	if err := flow.Validate(); err != nil {
		return NewValidationError("flows.validate", "FLOW_INVALID", err.Error(), ErrFlowInvalid)
	}

	if err := s.registry.ValidateFlow(flow); err != nil {
		return NewValidationError("flows.validate", "FLOW_INVALID", err.Error(), ErrFlowInvalid)
	}

	return nil
}

// Get returns one flow by id.
func (s *Flows) Get(ctx context.Context, id string) (*models.Flow, error) {
	return s.repo.FlowByID(ctx, id)
}

// List returns all stored flows.
func (s *Flows) List(ctx context.Context) ([]*models.Flow, error) {
	return s.repo.Flows(ctx)
}

// Delete removes a flow definition. Runs already recorded against it keep
// their history.
func (s *Flows) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteFlow(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Deleted flow", "flow_id", id)

	return nil
}
