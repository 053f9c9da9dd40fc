// Package noop provides an executor that always succeeds, used as a
// placeholder step in recorded flows and heavily in tests.
package noop

import (
	"context"
	"log/slog"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
)

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() string {
	return "noop-success"
}

// Execute succeeds immediately. An optional "output" object in the config is
// published as the node output so later nodes can reference it.
func (e *Executor) Execute(ctx context.Context, _ models.ExecutionScope, config map[string]any, logger *slog.Logger) (*protocol.Result, error) {
	logger.DebugContext(ctx, "Executing noop node")

	output, _ := config["output"].(map[string]any)

	return &protocol.Result{
		Outcome: protocol.OutcomeSuccess,
		Output:  output,
	}, nil
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"output": map[string]any{
				"type":        "object",
				"description": "Optional object published as the node output",
			},
		},
		"additionalProperties": false,
	}
}
