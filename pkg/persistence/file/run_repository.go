package file

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// RunRepository stores one JSON document per run under runs/. Conditional
// updates are enforced under the store mutex, which on a single node gives
// the same fencing a compare-and-swap row update gives on SQL.
type RunRepository struct {
	store *Persistence
}

func (r *RunRepository) CreateRun(_ context.Context, run *models.RunRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	path := r.store.path("runs", run.ID+".json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", persistence.ErrRunAlreadyExists, run.ID)
	}

	return r.store.writeJSON(path, run)
}

func (r *RunRepository) RunByID(_ context.Context, id string) (*models.RunRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.loadLocked(id)
}

func (r *RunRepository) UpdateRun(_ context.Context, run *models.RunRecord, expectedOwner string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, err := r.loadLocked(run.ID)
	if err != nil {
		return err
	}

	if expectedOwner != "" && current.LeaseOwner != expectedOwner {
		return fmt.Errorf("%w: run %s owned by %q", persistence.ErrLeaseLost, run.ID, current.LeaseOwner)
	}

	run.UpdatedAt = time.Now().UTC()

	return r.store.writeJSON(r.store.path("runs", run.ID+".json"), run)
}

func (r *RunRepository) AssignRunOwner(_ context.Context, runID, owner string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	run, err := r.loadLocked(runID)
	if err != nil {
		return err
	}

	run.LeaseOwner = owner
	run.UpdatedAt = time.Now().UTC()

	return r.store.writeJSON(r.store.path("runs", runID+".json"), run)
}

func (r *RunRepository) RequestControl(_ context.Context, runID string, req models.ControlRequest) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	run, err := r.loadLocked(runID)
	if err != nil {
		return err
	}

	run.PendingControl = req
	run.UpdatedAt = time.Now().UTC()

	return r.store.writeJSON(r.store.path("runs", runID+".json"), run)
}

func (r *RunRepository) loadLocked(id string) (*models.RunRecord, error) {
	var run models.RunRecord

	err := r.store.readJSON(r.store.path("runs", id+".json"), &run)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrRunNotFound, id)
		}

		return nil, persistence.NewStoreError("RunByID", id, err)
	}

	return &run, nil
}
