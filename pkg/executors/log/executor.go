// Package log provides an executor that writes a rendered message to the
// engine log, useful for tracing recorded procedures.
package log

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
	return "log"
}

// Execute logs the configured message at the configured level. Template
// expressions in the message are already resolved by the time it gets here.
func (e *Executor) Execute(ctx context.Context, scope models.ExecutionScope, config map[string]any, logger *slog.Logger) (*protocol.Result, error) {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	logger = logger.With("run_id", scope.RunID)

	switch level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return &protocol.Result{
		Outcome: protocol.OutcomeSuccess,
		Output:  map[string]any{"message": message},
	}, nil
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log, may contain template expressions",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level (default: info)",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}
