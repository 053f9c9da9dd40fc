package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/replaykit/replaykit/pkg/eventbus"
	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/replaykit/replaykit/pkg/queue"
)

// Runs is the control surface over run lifecycles: start, inspect, pause,
// resume, cancel. Control requests are recorded on the run record and applied
// by the runner at the next node boundary; nothing here touches a run's
// execution state directly.
type Runs struct {
	persistence persistence.Persistence
	queue       *queue.Queue
	publisher   eventbus.Publisher
	logger      *slog.Logger
}

func NewRuns(store persistence.Persistence, q *queue.Queue, publisher eventbus.Publisher, logger *slog.Logger) *Runs {
	return &Runs{
		persistence: store,
		queue:       q,
		publisher:   publisher,
		logger:      logger.With("module", "runs"),
	}
}

// Execute creates a queued run for the flow and enqueues it. The run starts
// executing when a scheduler claims the queue item.
func (s *Runs) Execute(ctx context.Context, req protocol.ExecuteRequest) (*models.RunRecord, error) {
	flow, err := s.persistence.FlowRepository().FlowByID(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	run := &models.RunRecord{
		ID:        "run-" + uuid.New().String()[:8],
		FlowID:    flow.ID,
		Status:    models.RunStatusQueued,
		NextSeq:   1,
		Args:      req.Args,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.persistence.RunRepository().CreateRun(ctx, run); err != nil {
		return nil, err
	}

	itemID, err := s.queue.Enqueue(ctx, run.ID, req.Priority)
	if err != nil {
		return nil, err
	}

	s.notifyQueued(ctx, run, itemID, req.Priority)

	s.logger.InfoContext(ctx, "Run queued",
		"run_id", run.ID, "flow_id", flow.ID, "priority", req.Priority)

	return run, nil
}

// Pause requests a pause. The run keeps executing until the runner reaches a
// node boundary; a queued run pauses before its first node.
func (s *Runs) Pause(ctx context.Context, runID string) error {
	return s.requestControl(ctx, runID, models.ControlPause)
}

// Cancel requests cancellation. It also reaches a node mid-flight: the
// runner cancels the executor's context as soon as it observes the request.
func (s *Runs) Cancel(ctx context.Context, runID string) error {
	return s.requestControl(ctx, runID, models.ControlCancel)
}

func (s *Runs) requestControl(ctx context.Context, runID string, req models.ControlRequest) error {
	run, err := s.persistence.RunRepository().RunByID(ctx, runID)
	if err != nil {
		return err
	}

	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s is %s", models.ErrRunTerminal, runID, run.Status)
	}

	if err := s.persistence.RunRepository().RequestControl(ctx, runID, req); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Control requested", "run_id", runID, "control", req)

	return nil
}

// Resume brings a paused run back into the queue. Resuming a run with a
// pause still pending simply clears the request before it takes effect, and
// a run that already has a live queue item is not enqueued again.
func (s *Runs) Resume(ctx context.Context, runID string) error {
	run, err := s.persistence.RunRepository().RunByID(ctx, runID)
	if err != nil {
		return err
	}

	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s is %s", models.ErrRunTerminal, runID, run.Status)
	}

	if run.Status != models.RunStatusPaused {
		if run.PendingControl == models.ControlPause {
			return s.persistence.RunRepository().RequestControl(ctx, runID, models.ControlNone)
		}

		return fmt.Errorf("%w: run %s is %s", models.ErrRunNotPaused, runID, run.Status)
	}

	active, err := s.queue.ActiveItemForRun(ctx, runID)
	if err != nil {
		return err
	}

	if active != nil {
		// A concurrent resume already put the run back in the queue.
		return nil
	}

	if err := s.persistence.RunRepository().RequestControl(ctx, runID, models.ControlNone); err != nil {
		return err
	}

	itemID, err := s.queue.Enqueue(ctx, runID, 0)
	if err != nil {
		return err
	}

	s.notifyQueued(ctx, run, itemID, 0)

	s.logger.InfoContext(ctx, "Run resumed", "run_id", runID)

	return nil
}

// State returns the run record snapshot.
func (s *Runs) State(ctx context.Context, runID string) (*models.RunRecord, error) {
	return s.persistence.RunRepository().RunByID(ctx, runID)
}

// Events returns the run's event log after sinceSeq, in sequence order.
func (s *Runs) Events(ctx context.Context, runID string, sinceSeq int64) ([]*events.RunEvent, error) {
	if _, err := s.persistence.RunRepository().RunByID(ctx, runID); err != nil {
		return nil, err
	}

	return s.persistence.EventRepository().ListEvents(ctx, runID, sinceSeq)
}

func (s *Runs) notifyQueued(ctx context.Context, run *models.RunRecord, itemID string, priority int) {
	if s.publisher == nil {
		return
	}

	notification := events.RunQueued{
		BaseNotification: events.NewBaseNotification(),
		RunID:            run.ID,
		FlowID:           run.FlowID,
		ItemID:           itemID,
		Priority:         priority,
	}

	if err := s.publisher.Publish(ctx, run.ID, notification); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish run queued notification",
			"run_id", run.ID, "error", err)
	}
}
