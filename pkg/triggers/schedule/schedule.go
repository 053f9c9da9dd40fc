// Package schedule provides a cron trigger source: each entry enqueues a run
// of its flow on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/robfig/cron/v3"
)

// Entry binds one cron expression to one flow.
type Entry struct {
	FlowID   string         `json:"flow_id"`
	Cron     string         `json:"cron"`
	Args     map[string]any `json:"args,omitempty"`
	Priority int            `json:"priority,omitempty"`
}

// Trigger fires execute requests on cron schedules.
type Trigger struct {
	entries []Entry
	cron    *cron.Cron
	logger  *slog.Logger
}

func NewTrigger(entries []Entry, logger *slog.Logger) *Trigger {
	return &Trigger{
		entries: entries,
		logger:  logger.With("module", "schedule_trigger"),
	}
}

// Validate parses every cron expression before the trigger starts.
func (t *Trigger) Validate() error {
	for _, entry := range t.entries {
		if entry.FlowID == "" {
			return fmt.Errorf("schedule entry for cron %q has no flow id", entry.Cron)
		}

		if _, err := cron.ParseStandard(entry.Cron); err != nil {
			return fmt.Errorf("invalid cron expression %q for flow %s: %w", entry.Cron, entry.FlowID, err)
		}
	}

	return nil
}

// Start schedules every entry and returns; firing happens on the cron's own
// goroutine until Stop.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	t.cron = cron.New()

	for _, entry := range t.entries {
		_, err := t.cron.AddFunc(entry.Cron, t.fire(ctx, entry, callback))
		if err != nil {
			return fmt.Errorf("failed to schedule flow %s: %w", entry.FlowID, err)
		}

		t.logger.InfoContext(ctx, "Scheduled flow", "flow_id", entry.FlowID, "cron", entry.Cron)
	}

	t.cron.Start()

	return nil
}

func (t *Trigger) fire(ctx context.Context, entry Entry, callback protocol.TriggerCallback) func() {
	return func() {
		runID, err := callback(ctx, protocol.ExecuteRequest{
			FlowID:   entry.FlowID,
			Args:     entry.Args,
			Priority: entry.Priority,
		})
		if err != nil {
			t.logger.ErrorContext(ctx, "Scheduled execution failed",
				"flow_id", entry.FlowID, "error", err)

			return
		}

		t.logger.InfoContext(ctx, "Scheduled run enqueued",
			"flow_id", entry.FlowID, "run_id", runID)
	}
}

// Stop halts the cron and waits for in-flight callbacks, bounded by ctx.
func (t *Trigger) Stop(ctx context.Context) error {
	if t.cron == nil {
		return nil
	}

	select {
	case <-t.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
