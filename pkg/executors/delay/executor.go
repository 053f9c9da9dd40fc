// Package delay provides an executor that waits before continuing, either
// in-process for short waits or by parking the run for manual resume.
package delay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
)

// ErrDelayDurationInvalid is returned when the configuration carries no
// usable duration.
var ErrDelayDurationInvalid = errors.New("invalid delay duration")

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() string {
	return "delay"
}

// Execute sleeps for the configured duration, honoring cancellation and the
// node deadline. With "park" set the run is suspended instead: it stays
// paused until resumed, and the node re-executes without parking again only
// if the caller flips the config.
func (e *Executor) Execute(ctx context.Context, _ models.ExecutionScope, config map[string]any, logger *slog.Logger) (*protocol.Result, error) {
	if park, _ := config["park"].(bool); park {
		logger.InfoContext(ctx, "Parking run for manual resume")

		return &protocol.Result{Outcome: protocol.OutcomeSuspended}, nil
	}

	duration, err := parseDuration(config)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Delaying", "duration", duration)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(duration):
	}

	return &protocol.Result{
		Outcome: protocol.OutcomeSuccess,
		Output:  map[string]any{"delayed_ms": duration.Milliseconds()},
	}, nil
}

func parseDuration(config map[string]any) (time.Duration, error) {
	if ms, ok := config["duration_ms"].(float64); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	if s, ok := config["duration"].(string); ok {
		duration, err := time.ParseDuration(s)
		if err == nil && duration > 0 {
			return duration, nil
		}
	}

	return 0, ErrDelayDurationInvalid
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration_ms": map[string]any{
				"type":        "number",
				"description": "Delay in milliseconds",
				"minimum":     1,
			},
			"duration": map[string]any{
				"type":        "string",
				"description": "Delay as a Go duration string, e.g. 1500ms or 2s",
			},
			"park": map[string]any{
				"type":        "boolean",
				"description": "Suspend the run instead of sleeping; it resumes via the control surface",
				"default":     false,
			},
		},
		"additionalProperties": false,
	}
}
