// Package main provides the ReplayKit engine: the scheduler process that
// claims queued runs and executes them, plus optional trigger sources.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/replaykit/replaykit/pkg/cmd"
	"github.com/replaykit/replaykit/pkg/otelhelper"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/replaykit/replaykit/pkg/queue"
	"github.com/replaykit/replaykit/pkg/runner"
	"github.com/replaykit/replaykit/pkg/scheduler"
	"github.com/replaykit/replaykit/pkg/services"
	queuetrigger "github.com/replaykit/replaykit/pkg/triggers/queue"
	"github.com/replaykit/replaykit/pkg/triggers/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const triggerStopTimeout = 10 * time.Second

type engineOptions struct {
	databaseURL     string
	eventBusType    string
	maxParallelRuns int
	leaseDuration   time.Duration
	pollInterval    time.Duration
	maxReclaims     int
	schedulesPath   string
	redisURL        string
	redisQueueKey   string
	tracing         bool
}

type Engine struct {
	id      string
	logger  *slog.Logger
	options engineOptions
}

func NewEngine(id string, logger *slog.Logger, options engineOptions) *Engine {
	return &Engine{id: id, logger: logger, options: options}
}

// Run wires persistence, event bus, scheduler, and triggers, then blocks
// until SIGINT/SIGTERM.
func (e *Engine) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cmd.NewPersistence(ctx, e.logger, e.options.databaseURL)
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			e.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	if err := store.HealthCheck(ctx); err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(e.options.eventBusType, "replaykit-engine", e.logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			e.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	tracer, err := e.newTracer(ctx)
	if err != nil {
		return err
	}

	registry := cmd.NewRegistry(e.logger)
	q := queue.NewQueue(store.QueueRepository(), e.logger)
	r := runner.NewRunner(store, registry, e.logger, tracer, runner.DefaultConfig())

	sched := scheduler.NewScheduler(scheduler.Config{
		EngineID:        e.id,
		MaxParallelRuns: e.options.maxParallelRuns,
		LeaseDuration:   e.options.leaseDuration,
		PollInterval:    e.options.pollInterval,
		MaxReclaims:     e.options.maxReclaims,
	}, q, store, r, eventBus, e.logger)

	runService := services.NewRuns(store, q, eventBus, e.logger)

	triggers, err := e.startTriggers(ctx, runService)
	if err != nil {
		return err
	}

	defer e.stopTriggers(triggers)

	e.logger.InfoContext(ctx, "Engine started",
		"max_parallel_runs", e.options.maxParallelRuns,
		"lease_duration", e.options.leaseDuration)

	return sched.Start(ctx)
}

// newTracer returns the OTLP tracer when tracing is enabled and a noop
// tracer from the global provider otherwise.
func (e *Engine) newTracer(ctx context.Context) (trace.Tracer, error) {
	if !e.options.tracing {
		return otel.Tracer("replaykit-engine"), nil
	}

	tracer, err := otelhelper.NewTracer(ctx, "replaykit-engine")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	return tracer, nil
}

func (e *Engine) startTriggers(ctx context.Context, runService *services.Runs) ([]protocol.Trigger, error) {
	callback := func(ctx context.Context, req protocol.ExecuteRequest) (string, error) {
		run, err := runService.Execute(ctx, req)
		if err != nil {
			return "", err
		}

		return run.ID, nil
	}

	var triggers []protocol.Trigger

	if e.options.schedulesPath != "" {
		trigger, err := e.loadScheduleTrigger()
		if err != nil {
			return nil, err
		}

		triggers = append(triggers, trigger)
	}

	if e.options.redisURL != "" {
		trigger, err := queuetrigger.NewTrigger(e.options.redisURL, e.options.redisQueueKey, e.logger)
		if err != nil {
			return nil, err
		}

		triggers = append(triggers, trigger)
	}

	for _, trigger := range triggers {
		if err := trigger.Validate(); err != nil {
			return nil, err
		}

		if err := trigger.Start(ctx, callback); err != nil {
			return nil, err
		}
	}

	return triggers, nil
}

func (e *Engine) loadScheduleTrigger() (*schedule.Trigger, error) {
	data, err := os.ReadFile(e.options.schedulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules file: %w", err)
	}

	var entries []schedule.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse schedules file: %w", err)
	}

	return schedule.NewTrigger(entries, e.logger), nil
}

func (e *Engine) stopTriggers(triggers []protocol.Trigger) {
	stopCtx, cancel := context.WithTimeout(context.Background(), triggerStopTimeout)
	defer cancel()

	for _, trigger := range triggers {
		if err := trigger.Stop(stopCtx); err != nil {
			e.logger.Error("Failed to stop trigger", "error", err)
		}
	}
}
