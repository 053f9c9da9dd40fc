// Package runner is the execution kernel: it drives one run through its
// flow graph, dispatching nodes to registered executors under retry and
// timeout policy and recording every transition as an ordered run event.
//
// The runner is re-entrant from any persisted run snapshot. It keeps no
// state of its own between calls; a run interrupted by a crash or pause is
// continued by any later runner from the RunRecord and its event log.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/otelhelper"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/replaykit/replaykit/pkg/registry"
	"github.com/replaykit/replaykit/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config bounds runner behavior that is not expressed in flow policy.
type Config struct {
	// HardTimeout is the engine ceiling on a single node invocation. Node
	// and flow policy may only tighten it.
	HardTimeout time.Duration

	// ControlPollInterval is how often an in-flight node invocation checks
	// for a cancel request so long-running executors are asked to abort
	// promptly.
	ControlPollInterval time.Duration
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		HardTimeout:         5 * time.Minute,
		ControlPollInterval: 200 * time.Millisecond,
	}
}

// Runner executes runs against the persistence port and executor registry.
type Runner struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	logger      *slog.Logger
	tracer      trace.Tracer
	config      Config
}

func NewRunner(
	store persistence.Persistence,
	reg *registry.Registry,
	logger *slog.Logger,
	tracer trace.Tracer,
	config Config,
) *Runner {
	if config.HardTimeout <= 0 {
		config.HardTimeout = DefaultConfig().HardTimeout
	}

	if config.ControlPollInterval <= 0 {
		config.ControlPollInterval = DefaultConfig().ControlPollInterval
	}

	return &Runner{
		persistence: store,
		registry:    reg,
		logger:      logger.With("module", "runner"),
		tracer:      tracer,
		config:      config,
	}
}

// Execute drives the run until it reaches a terminal status, pauses, or
// ownership is lost. owner fences every mutation: if the lease moves to
// another scheduler the store rejects the next write with ErrLeaseLost and
// the runner stops silently, leaving the run to its new owner.
func (r *Runner) Execute(ctx context.Context, runID, owner string) (models.RunStatus, error) {
	runs := r.persistence.RunRepository()

	run, err := runs.RunByID(ctx, runID)
	if err != nil {
		return "", err
	}

	if run.Status.Terminal() {
		// Redelivered item for a finished run; nothing left to do.
		return run.Status, nil
	}

	snapshot, err := r.replayLog(ctx, run)
	if err != nil {
		return run.Status, err
	}

	flow, err := r.persistence.FlowRepository().FlowByID(ctx, run.FlowID)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return r.failRun(ctx, run, owner, models.ErrorKindConfig, err.Error())
		}

		return run.Status, err
	}

	logger := r.logger.With("run_id", run.ID, "flow_id", flow.ID)

	ctx, span := r.tracer.Start(ctx, "run.execute", trace.WithAttributes(
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.FlowIDKey, flow.ID),
	))
	defer span.End()

	scope := models.ExecutionScope{
		RunID:       run.ID,
		FlowID:      flow.ID,
		Args:        run.Args,
		Variables:   flow.Variables,
		NodeOutputs: snapshot.NodeOutputs,
	}

	currentNodeID := run.CurrentNodeID
	if currentNodeID == "" {
		currentNodeID = flow.EntryNodeID
	}

	for {
		if err := r.refreshControl(ctx, run); err != nil {
			return run.Status, err
		}

		node, ok := flow.NodeByID(currentNodeID)
		if !ok {
			return r.failRun(ctx, run, owner, models.ErrorKindConfig,
				fmt.Sprintf("node %s not found in flow %s", currentNodeID, flow.ID))
		}

		executor, ok := r.registry.Get(node.Kind)
		if !ok {
			// Unknown kind fails the run before it ever transitions to
			// running and before any run.node.* event is recorded.
			return r.failRun(ctx, run, owner, models.ErrorKindConfig,
				fmt.Sprintf("executor kind %q not registered", node.Kind))
		}

		if status, done, err := r.ensureRunning(ctx, run, owner); done || err != nil {
			return status, err
		}

		switch run.PendingControl {
		case models.ControlCancel:
			return r.cancelRun(ctx, run, owner)
		case models.ControlPause:
			return r.pauseRun(ctx, run, owner)
		}

		status, nextNodeID, done, err := r.executeNode(ctx, run, flow, node, executor, scope, owner, logger)
		if done || err != nil {
			return status, err
		}

		currentNodeID = nextNodeID
	}
}

// Fail force-fails a run from outside the execution loop, used by the
// scheduler when a queue item exhausts its reclaim budget. Terminal runs are
// left untouched.
func (r *Runner) Fail(ctx context.Context, runID, owner string, kind models.ErrorKind, detail string) (models.RunStatus, error) {
	run, err := r.persistence.RunRepository().RunByID(ctx, runID)
	if err != nil {
		return "", err
	}

	if run.Status.Terminal() {
		return run.Status, nil
	}

	if _, err := r.replayLog(ctx, run); err != nil {
		return run.Status, err
	}

	return r.failRun(ctx, run, owner, kind, detail)
}

// replayLog reconstructs run-scoped state from the durable event log, so a
// continued run sees every output produced before the interruption. It also
// realigns NextSeq with the log: a crash between an event append and the
// record update leaves the persisted NextSeq one behind the last event, and
// the log is the sequence authority.
func (r *Runner) replayLog(ctx context.Context, run *models.RunRecord) (*events.RunSnapshot, error) {
	log, err := r.persistence.EventRepository().ListEvents(ctx, run.ID, 0)
	if err != nil {
		return nil, err
	}

	snapshot := events.ReplayState(log)

	if next := snapshot.LastSeq + 1; next > run.NextSeq {
		run.NextSeq = next
	}

	return snapshot, nil
}

// refreshControl re-reads the pending control request set by the control
// surface since the last node boundary.
func (r *Runner) refreshControl(ctx context.Context, run *models.RunRecord) error {
	fresh, err := r.persistence.RunRepository().RunByID(ctx, run.ID)
	if err != nil {
		return err
	}

	run.PendingControl = fresh.PendingControl

	return nil
}

// ensureRunning moves a queued or paused run into running, emitting the
// matching lifecycle event. done is true only when the run cannot legally
// run anymore (raced into a terminal state elsewhere).
func (r *Runner) ensureRunning(ctx context.Context, run *models.RunRecord, owner string) (models.RunStatus, bool, error) {
	switch run.Status {
	case models.RunStatusRunning:
		return run.Status, false, nil
	case models.RunStatusQueued:
		now := time.Now().UTC()
		run.Status = models.RunStatusRunning
		run.StartedAt = &now

		if err := r.emit(ctx, run, owner, events.New(run.ID, run.NextSeq, events.RunStarted)); err != nil {
			return run.Status, false, err
		}

		return run.Status, false, nil
	case models.RunStatusPaused:
		run.Status = models.RunStatusRunning

		if err := r.emit(ctx, run, owner, events.New(run.ID, run.NextSeq, events.RunResumed)); err != nil {
			return run.Status, false, err
		}

		return run.Status, false, nil
	default:
		return run.Status, true, nil
	}
}

// executeNode runs one node through its attempt loop and edge selection.
// done is true when the run reached a terminal or paused state.
func (r *Runner) executeNode(
	ctx context.Context,
	run *models.RunRecord,
	flow *models.Flow,
	node *models.Node,
	executor protocol.Executor,
	scope models.ExecutionScope,
	owner string,
	logger *slog.Logger,
) (status models.RunStatus, nextNodeID string, done bool, err error) {
	retryCount, retryInterval := nodeRetryPolicy(node)
	run.MaxAttempts = retryCount + 1

	nodeLogger := logger.With("node_id", node.ID, "kind", node.Kind)

	for {
		run.Attempt++

		started := events.New(run.ID, run.NextSeq, events.RunNodeStarted)
		started.NodeID = node.ID
		started.Kind = node.Kind
		started.Attempt = run.Attempt

		if err := r.emit(ctx, run, owner, started); err != nil {
			return run.Status, "", true, err
		}

		nodeLogger.InfoContext(ctx, "Executing node", "attempt", run.Attempt)

		result, nodeErr := r.invokeNode(ctx, run, flow, node, executor, scope, nodeLogger)

		if nodeErr == nil && result.Outcome == protocol.OutcomeSuspended {
			// The node parked the run without completing; it re-executes
			// under the same attempt number after resume.
			run.Attempt--

			status, err := r.pauseRun(ctx, run, owner)

			return status, "", true, err
		}

		if nodeErr == nil {
			return r.completeNode(ctx, run, flow, node, result, scope, owner)
		}

		failed := events.New(run.ID, run.NextSeq, events.RunNodeFailed)
		failed.NodeID = node.ID
		failed.Kind = node.Kind
		failed.Attempt = run.Attempt
		failed.ErrorKind = nodeErr.Kind
		failed.ErrorDetail = nodeErr.Err.Error()

		if err := r.emit(ctx, run, owner, failed); err != nil {
			return run.Status, "", true, err
		}

		nodeLogger.WarnContext(ctx, "Node attempt failed",
			"attempt", run.Attempt, "error_kind", nodeErr.Kind, "error", nodeErr.Err)

		// A cancel raced with the failing invocation; canceling wins over
		// retry and onError handling.
		if err := r.refreshControl(ctx, run); err != nil {
			return run.Status, "", true, err
		}

		if run.PendingControl == models.ControlCancel {
			status, err := r.cancelRun(ctx, run, owner)

			return status, "", true, err
		}

		if nodeErr.Retryable() && run.Attempt <= retryCount {
			select {
			case <-ctx.Done():
				return run.Status, "", true, ctx.Err()
			case <-time.After(retryInterval):
			}

			continue
		}

		if nodeErr.Retryable() {
			if edge, ok := flow.EdgeFrom(node.ID, models.EdgeLabelOnError); ok {
				run.CurrentNodeID = edge.To
				run.Attempt = 0

				return run.Status, edge.To, false, nil
			}
		}

		status, err := r.failRun(ctx, run, owner, nodeErr.Kind, nodeErr.Err.Error())

		return status, "", true, err
	}
}

// completeNode records the node result and selects the next edge. Reaching
// a node with no matching outgoing edge completes the run.
func (r *Runner) completeNode(
	ctx context.Context,
	run *models.RunRecord,
	flow *models.Flow,
	node *models.Node,
	result *protocol.Result,
	scope models.ExecutionScope,
	owner string,
) (models.RunStatus, string, bool, error) {
	label := result.Next
	if label == "" {
		label = models.EdgeLabelDefault
	}

	edge, hasNext := flow.EdgeFrom(node.ID, label)

	completed := events.New(run.ID, run.NextSeq, events.RunNodeCompleted)
	completed.NodeID = node.ID
	completed.Kind = node.Kind
	completed.Attempt = run.Attempt
	completed.Output = result.Output
	completed.Next = label

	run.Attempt = 0

	if hasNext {
		run.CurrentNodeID = edge.To
	}

	if err := r.emit(ctx, run, owner, completed); err != nil {
		return run.Status, "", true, err
	}

	if result.Output != nil {
		scope.NodeOutputs[node.ID] = result.Output
	}

	if !hasNext {
		status, err := r.succeedRun(ctx, run, owner)

		return status, "", true, err
	}

	return run.Status, edge.To, false, nil
}

// invokeNode renders the node config, derives the deadline, and calls the
// executor. A cancel request observed mid-invocation cancels the node
// context so cooperative executors abort promptly.
func (r *Runner) invokeNode(
	ctx context.Context,
	run *models.RunRecord,
	flow *models.Flow,
	node *models.Node,
	executor protocol.Executor,
	scope models.ExecutionScope,
	logger *slog.Logger,
) (*protocol.Result, *models.NodeError) {
	config, err := template.RenderConfig(node.Config, scope)
	if err != nil {
		return nil, models.NewNodeError(models.ErrorKindConfig, node.ID, err)
	}

	nodeCtx, cancel := context.WithTimeout(ctx, r.nodeTimeout(flow, node))
	defer cancel()

	watchDone := make(chan struct{})
	defer close(watchDone)

	go r.watchCancel(nodeCtx, cancel, run.ID, watchDone)

	ctxSpan, span := r.tracer.Start(nodeCtx, "run.node", trace.WithAttributes(
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, node.Kind),
		attribute.Int(otelhelper.AttemptKey, run.Attempt),
	))
	defer span.End()

	result, err := executor.Execute(ctxSpan, scope, config, logger)
	if err != nil {
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.NodeIDKey, node.ID))

		kind := models.ErrorKindNodeFailed
		if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
			kind = models.ErrorKindNodeTimeout
		}

		return nil, models.NewNodeError(kind, node.ID, err)
	}

	if result == nil {
		result = &protocol.Result{Outcome: protocol.OutcomeSuccess}
	}

	if result.Outcome == protocol.OutcomeFailure {
		return nil, models.NewNodeError(models.ErrorKindNodeFailed, node.ID,
			errors.New("executor reported failure"))
	}

	return result, nil
}

// watchCancel polls the run record while a node executes and cancels the
// node context when a cancel request appears.
func (r *Runner) watchCancel(ctx context.Context, cancel context.CancelFunc, runID string, done <-chan struct{}) {
	ticker := time.NewTicker(r.config.ControlPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			run, err := r.persistence.RunRepository().RunByID(ctx, runID)
			if err != nil {
				continue
			}

			if run.PendingControl == models.ControlCancel {
				cancel()

				return
			}
		}
	}
}

func (r *Runner) nodeTimeout(flow *models.Flow, node *models.Node) time.Duration {
	timeout := r.config.HardTimeout

	if flow.Policy != nil && flow.Policy.DefaultTimeoutMs > 0 {
		timeout = time.Duration(flow.Policy.DefaultTimeoutMs) * time.Millisecond
	}

	if node.Policy != nil && node.Policy.TimeoutMs > 0 {
		timeout = time.Duration(node.Policy.TimeoutMs) * time.Millisecond
	}

	if timeout > r.config.HardTimeout {
		timeout = r.config.HardTimeout
	}

	return timeout
}

func nodeRetryPolicy(node *models.Node) (count int, interval time.Duration) {
	if node.Policy == nil || node.Policy.Retry == nil {
		return 0, 0
	}

	return node.Policy.Retry.Count,
		time.Duration(node.Policy.Retry.IntervalMs) * time.Millisecond
}

func (r *Runner) succeedRun(ctx context.Context, run *models.RunRecord, owner string) (models.RunStatus, error) {
	now := time.Now().UTC()
	run.Status = models.RunStatusSucceeded
	run.CurrentNodeID = ""
	run.FinishedAt = &now

	if err := r.emit(ctx, run, owner, events.New(run.ID, run.NextSeq, events.RunSucceeded)); err != nil {
		return run.Status, err
	}

	r.logger.InfoContext(ctx, "Run succeeded", "run_id", run.ID)

	return run.Status, nil
}

func (r *Runner) failRun(ctx context.Context, run *models.RunRecord, owner string, kind models.ErrorKind, detail string) (models.RunStatus, error) {
	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.ErrorKind = kind
	run.ErrorDetail = detail
	run.FinishedAt = &now

	failed := events.New(run.ID, run.NextSeq, events.RunFailed)
	failed.ErrorKind = kind
	failed.ErrorDetail = detail

	if err := r.emit(ctx, run, owner, failed); err != nil {
		return run.Status, err
	}

	r.logger.WarnContext(ctx, "Run failed",
		"run_id", run.ID, "error_kind", kind, "error", detail)

	return run.Status, nil
}

func (r *Runner) cancelRun(ctx context.Context, run *models.RunRecord, owner string) (models.RunStatus, error) {
	now := time.Now().UTC()
	run.Status = models.RunStatusCanceled
	run.PendingControl = models.ControlNone
	run.FinishedAt = &now

	if err := r.emit(ctx, run, owner, events.New(run.ID, run.NextSeq, events.RunCanceled)); err != nil {
		return run.Status, err
	}

	r.logger.InfoContext(ctx, "Run canceled", "run_id", run.ID)

	return run.Status, nil
}

func (r *Runner) pauseRun(ctx context.Context, run *models.RunRecord, owner string) (models.RunStatus, error) {
	run.Status = models.RunStatusPaused
	run.PendingControl = models.ControlNone

	if err := r.emit(ctx, run, owner, events.New(run.ID, run.NextSeq, events.RunPaused)); err != nil {
		return run.Status, err
	}

	r.logger.InfoContext(ctx, "Run paused", "run_id", run.ID)

	return run.Status, nil
}

// emit appends one event under the run's next sequence number and persists
// the run record in the same step, fenced by the owner's lease. ErrLeaseLost
// from the store means another owner took over; ErrSequenceConflict means
// the log advanced past this record snapshot. Either way the caller must
// stop immediately.
func (r *Runner) emit(ctx context.Context, run *models.RunRecord, owner string, event *events.RunEvent) error {
	event.Seq = run.NextSeq

	if err := r.persistence.EventRepository().AppendEvent(ctx, event); err != nil {
		return err
	}

	run.NextSeq++

	return r.persistence.RunRepository().UpdateRun(ctx, run, owner)
}
