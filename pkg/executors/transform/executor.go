// Package transform provides an executor that reshapes run-scoped data
// through template expressions into a new node output.
package transform

import (
	"context"
	"errors"
	"log/slog"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
)

// ErrExpressionMissing is returned when the configuration has no expression.
var ErrExpressionMissing = errors.New("missing required field 'expression'")

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() string {
	return "transform"
}

// Execute publishes the rendered expression as the node output. The runner
// resolves template expressions before dispatch, so a string expression like
// "{{ .outputs.fetch.body }}" arrives here as the referenced value.
func (e *Executor) Execute(ctx context.Context, _ models.ExecutionScope, config map[string]any, logger *slog.Logger) (*protocol.Result, error) {
	expression, exists := config["expression"]
	if !exists {
		return nil, ErrExpressionMissing
	}

	logger.DebugContext(ctx, "Transform produced output")

	output, ok := expression.(map[string]any)
	if !ok {
		output = map[string]any{"data": expression}
	}

	return &protocol.Result{
		Outcome: protocol.OutcomeSuccess,
		Output:  output,
	}, nil
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"description": "Template expression or object to publish as the node output",
			},
		},
		"required":             []string{"expression"},
		"additionalProperties": false,
	}
}
