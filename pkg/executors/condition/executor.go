// Package condition provides an executor for two-way branching: it
// evaluates an expression and routes the run along the true or false edge.
package condition

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
)

// ErrConditionMissing is returned when the configuration has no condition.
var ErrConditionMissing = errors.New("missing required field 'condition'")

type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Kind() string {
	return "condition"
}

// Execute evaluates the already-rendered condition value for truthiness and
// reports the matching edge label.
func (e *Executor) Execute(ctx context.Context, _ models.ExecutionScope, config map[string]any, logger *slog.Logger) (*protocol.Result, error) {
	condition, exists := config["condition"]
	if !exists {
		return nil, ErrConditionMissing
	}

	isTrue := truthy(condition)

	next := models.EdgeLabelFalse
	if isTrue {
		next = models.EdgeLabelTrue
	}

	logger.DebugContext(ctx, "Condition evaluated", "result", isTrue)

	return &protocol.Result{
		Outcome: protocol.OutcomeSuccess,
		Next:    next,
		Output: map[string]any{
			"condition_result": isTrue,
			"evaluated_value":  condition,
		},
	}, nil
}

// truthy converts rendered values to a boolean verdict.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int, int32, int64:
		return v != 0
	case float32, float64:
		return v != 0.0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return false
	}
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"description": "Expression to evaluate for truthiness, usually a template string",
			},
		},
		"required":             []string{"condition"},
		"additionalProperties": false,
	}
}
