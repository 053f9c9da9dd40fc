// Package scheduler claims queued runs under a lease and executes them with
// bounded concurrency. It is the only component that talks to the queue as a
// consumer: the runner never claims, the API never executes.
//
// Liveness is lease-based. Each claimed item is renewed by a heartbeat at a
// third of the lease duration; a scheduler that dies simply stops renewing
// and any peer reclaims the item once the lease expires. Claiming an expired
// item increments its reclaim count, and items over the reclaim budget are
// retired by failing the run instead of crash-looping it.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/replaykit/replaykit/pkg/eventbus"
	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/queue"
	"github.com/replaykit/replaykit/pkg/runner"
)

// Config tunes one scheduler instance.
type Config struct {
	// EngineID is the lease owner identity for every claim this scheduler
	// makes. It must be unique per process.
	EngineID string

	// MaxParallelRuns bounds concurrent run executions.
	MaxParallelRuns int

	// LeaseDuration is how long a claim stays valid without renewal.
	LeaseDuration time.Duration

	// PollInterval is the fallback claim cadence when no queue notification
	// arrives, and the cadence at which expired peer leases are reclaimed.
	PollInterval time.Duration

	// MaxReclaims is how many times an item may be reclaimed from an expired
	// lease before the run is failed with LEASE_LOST.
	MaxReclaims int
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig(engineID string) Config {
	return Config{
		EngineID:        engineID,
		MaxParallelRuns: 4,
		LeaseDuration:   30 * time.Second,
		PollInterval:    2 * time.Second,
		MaxReclaims:     3,
	}
}

// Scheduler drives the claim/execute/retire loop.
type Scheduler struct {
	config      Config
	queue       *queue.Queue
	persistence persistence.Persistence
	runner      *runner.Runner
	eventBus    eventbus.EventBus
	logger      *slog.Logger

	slots chan struct{}
	wake  chan struct{}
	wg    sync.WaitGroup
}

func NewScheduler(
	config Config,
	q *queue.Queue,
	store persistence.Persistence,
	r *runner.Runner,
	bus eventbus.EventBus,
	logger *slog.Logger,
) *Scheduler {
	if config.MaxParallelRuns <= 0 {
		config.MaxParallelRuns = DefaultConfig(config.EngineID).MaxParallelRuns
	}

	if config.LeaseDuration <= 0 {
		config.LeaseDuration = DefaultConfig(config.EngineID).LeaseDuration
	}

	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig(config.EngineID).PollInterval
	}

	if config.MaxReclaims <= 0 {
		config.MaxReclaims = DefaultConfig(config.EngineID).MaxReclaims
	}

	return &Scheduler{
		config:      config,
		queue:       q,
		persistence: store,
		runner:      r,
		eventBus:    bus,
		logger:      logger.With("module", "scheduler", "engine_id", config.EngineID),
		slots:       make(chan struct{}, config.MaxParallelRuns),
		wake:        make(chan struct{}, 1),
	}
}

// Start runs the scheduler until ctx is canceled, then waits for in-flight
// runs to reach a node boundary and release their claims. The first drain
// happens immediately, which is also the startup recovery path: expired
// leases left by a crashed peer are claimable right away.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.eventBus != nil {
		err := s.eventBus.Handle(events.RunQueuedNotification, s.handleRunQueued)
		if err != nil {
			return err
		}

		err = s.eventBus.Subscribe(ctx)
		if err != nil {
			return err
		}
	}

	s.logger.InfoContext(ctx, "Scheduler started",
		"max_parallel_runs", s.config.MaxParallelRuns,
		"lease_duration", s.config.LeaseDuration)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		s.drain(ctx)

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopping, waiting for in-flight runs")
			s.wg.Wait()

			return nil
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

func (s *Scheduler) handleRunQueued(_ context.Context, _ any) error {
	select {
	case s.wake <- struct{}{}:
	default:
	}

	return nil
}

// drain claims items until the queue is empty or every slot is busy.
func (s *Scheduler) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s.slots <- struct{}{}:
		default:
			return
		}

		item, err := s.queue.ClaimNext(ctx, s.config.EngineID, s.config.LeaseDuration)
		if err != nil {
			<-s.slots

			if !persistence.IsQueueEmpty(err) && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(ctx, "Failed to claim queue item", "error", err)
			}

			return
		}

		if item.Reclaims > s.config.MaxReclaims {
			s.retireItem(ctx, item)
			<-s.slots

			continue
		}

		if err := s.persistence.RunRepository().AssignRunOwner(ctx, item.RunID, s.config.EngineID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to assign run owner",
				"run_id", item.RunID, "error", err)
			s.releaseItem(ctx, item.ID)
			<-s.slots

			continue
		}

		s.wg.Add(1)

		go s.execute(ctx, item)
	}
}

// retireItem fails a run whose queue item was reclaimed past the budget.
func (s *Scheduler) retireItem(ctx context.Context, item *models.QueueItem) {
	s.logger.WarnContext(ctx, "Queue item exceeded reclaim budget, failing run",
		"item_id", item.ID, "run_id", item.RunID, "reclaims", item.Reclaims)

	if err := s.persistence.RunRepository().AssignRunOwner(ctx, item.RunID, s.config.EngineID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to assign run owner", "run_id", item.RunID, "error", err)

		return
	}

	status, err := s.runner.Fail(ctx, item.RunID, s.config.EngineID,
		models.ErrorKindLeaseLost, "queue item exceeded reclaim budget")
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to retire run", "run_id", item.RunID, "error", err)

		return
	}

	if err := s.queue.MarkDone(ctx, item.ID, s.config.EngineID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark item done", "item_id", item.ID, "error", err)

		return
	}

	s.publishFinished(ctx, item.RunID, status)
}

// execute runs one claimed item to a terminal or paused state under a
// heartbeat-renewed lease.
func (s *Scheduler) execute(ctx context.Context, item *models.QueueItem) {
	defer s.wg.Done()
	defer func() { <-s.slots }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go s.heartbeat(runCtx, cancel, item.ID, heartbeatDone)

	status, err := s.runner.Execute(runCtx, item.RunID, s.config.EngineID)

	cancel()
	<-heartbeatDone

	if err != nil {
		switch {
		case persistence.IsLeaseLost(err):
			// Another scheduler took over; the run is theirs now.
			s.logger.DebugContext(ctx, "Lost lease mid-run",
				"run_id", item.RunID, "item_id", item.ID)
		case persistence.IsSequenceConflict(err):
			// A sequence conflict is a stale record snapshot, not a lost
			// lease; this scheduler still owns the item. Give it back so the
			// run is retried promptly instead of waiting out the lease.
			s.logger.WarnContext(ctx, "Event sequence conflict mid-run, releasing item",
				"run_id", item.RunID, "item_id", item.ID)
			s.releaseItem(ctx, item.ID)
		case errors.Is(err, context.Canceled):
			s.releaseItem(ctx, item.ID)
		default:
			s.logger.ErrorContext(ctx, "Run execution failed",
				"run_id", item.RunID, "error", err)
			s.releaseItem(ctx, item.ID)
		}

		return
	}

	opCtx := context.WithoutCancel(ctx)

	if status.Terminal() {
		if err := s.queue.MarkDone(opCtx, item.ID, s.config.EngineID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to mark item done",
				"item_id", item.ID, "error", err)
		}

		s.publishFinished(opCtx, item.RunID, status)

		return
	}

	// Paused: the item is retired, not released. Resume enqueues a fresh
	// item; releasing this one would let a scheduler re-claim the run while
	// it is still meant to be paused.
	if err := s.queue.MarkDone(opCtx, item.ID, s.config.EngineID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to retire paused run item",
			"item_id", item.ID, "error", err)
	}
}

// heartbeat renews the item lease at a third of its duration. A lost lease
// cancels the run context so the runner stops at the next boundary.
func (s *Scheduler) heartbeat(ctx context.Context, cancel context.CancelFunc, itemID string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.LeaseDuration / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.queue.RenewLease(ctx, itemID, s.config.EngineID, s.config.LeaseDuration)
			if err == nil {
				continue
			}

			if persistence.IsLeaseLost(err) {
				s.logger.WarnContext(ctx, "Lease lost during heartbeat", "item_id", itemID)
				cancel()

				return
			}

			s.logger.ErrorContext(ctx, "Failed to renew lease",
				"item_id", itemID, "error", err)
		}
	}
}

func (s *Scheduler) releaseItem(ctx context.Context, itemID string) {
	err := s.queue.Release(context.WithoutCancel(ctx), itemID, s.config.EngineID)
	if err != nil && !persistence.IsLeaseLost(err) {
		s.logger.ErrorContext(ctx, "Failed to release queue item",
			"item_id", itemID, "error", err)
	}
}

func (s *Scheduler) publishFinished(ctx context.Context, runID string, status models.RunStatus) {
	if s.eventBus == nil {
		return
	}

	run, err := s.persistence.RunRepository().RunByID(ctx, runID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load run for notification",
			"run_id", runID, "error", err)

		return
	}

	notification := events.RunFinished{
		BaseNotification: events.NewBaseNotification(),
		RunID:            run.ID,
		FlowID:           run.FlowID,
		Status:           status,
		ErrorKind:        run.ErrorKind,
		ErrorDetail:      run.ErrorDetail,
	}
	notification.EngineID = s.config.EngineID

	if run.StartedAt != nil && run.FinishedAt != nil {
		notification.DurationMs = run.FinishedAt.Sub(*run.StartedAt).Milliseconds()
	}

	if err := s.eventBus.Publish(ctx, run.ID, notification); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish run finished notification",
			"run_id", run.ID, "error", err)
	}
}
