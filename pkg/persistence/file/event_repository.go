package file

import (
	"context"
	"fmt"
	"os"

	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// EventRepository stores each run's event log as one ordered JSON array
// under events/. Appends rewrite the log atomically; logs stay small enough
// (one entry per node attempt) that this beats managing per-event files.
type EventRepository struct {
	store *Persistence
}

func (r *EventRepository) AppendEvent(_ context.Context, event *events.RunEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	log, err := r.loadLocked(event.RunID)
	if err != nil {
		return err
	}

	for _, existing := range log {
		if existing.Seq == event.Seq {
			return fmt.Errorf("%w: run %s seq %d", persistence.ErrSequenceConflict, event.RunID, event.Seq)
		}
	}

	log = append(log, event)

	return r.store.writeJSON(r.store.path("events", event.RunID+".json"), log)
}

func (r *EventRepository) ListEvents(_ context.Context, runID string, sinceSeq int64) ([]*events.RunEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	log, err := r.loadLocked(runID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*events.RunEvent, 0, len(log))

	for _, event := range log {
		if event.Seq > sinceSeq {
			filtered = append(filtered, event)
		}
	}

	return filtered, nil
}

// loadLocked returns the stored log. Events are appended in seq order so
// the array on disk is already sorted.
func (r *EventRepository) loadLocked(runID string) ([]*events.RunEvent, error) {
	var log []*events.RunEvent

	err := r.store.readJSON(r.store.path("events", runID+".json"), &log)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewStoreError("ListEvents", runID, err)
	}

	return log, nil
}
