package file

import (
	"context"
	"fmt"
	"os"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// FlowRepository stores one JSON document per flow under flows/.
type FlowRepository struct {
	store *Persistence
}

func (r *FlowRepository) SaveFlow(_ context.Context, flow *models.Flow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.writeJSON(r.store.path("flows", flow.ID+".json"), flow)
}

func (r *FlowRepository) FlowByID(_ context.Context, id string) (*models.Flow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var flow models.Flow

	err := r.store.readJSON(r.store.path("flows", id+".json"), &flow)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrFlowNotFound, id)
		}

		return nil, persistence.NewStoreError("FlowByID", id, err)
	}

	return &flow, nil
}

func (r *FlowRepository) Flows(ctx context.Context) ([]*models.Flow, error) {
	ids, err := r.store.listJSON("flows")
	if err != nil {
		return nil, persistence.NewStoreError("Flows", "", err)
	}

	flows := make([]*models.Flow, 0, len(ids))

	for _, id := range ids {
		flow, err := r.FlowByID(ctx, id)
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	return flows, nil
}

func (r *FlowRepository) DeleteFlow(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := os.Remove(r.store.path("flows", id+".json"))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", persistence.ErrFlowNotFound, id)
	}

	return err
}
