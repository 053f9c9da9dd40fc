package noop

import (
	"log/slog"
	"testing"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Execute(t *testing.T) {
	executor := NewExecutor()
	assert.Equal(t, "noop-success", executor.Kind())

	t.Run("no output configured", func(t *testing.T) {
		result, err := executor.Execute(t.Context(), models.ExecutionScope{}, nil, slog.Default())
		require.NoError(t, err)
		assert.Equal(t, protocol.OutcomeSuccess, result.Outcome)
		assert.Nil(t, result.Output)
	})

	t.Run("output is echoed", func(t *testing.T) {
		result, err := executor.Execute(t.Context(), models.ExecutionScope{},
			map[string]any{"output": map[string]any{"value": 1.0}}, slog.Default())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"value": 1.0}, result.Output)
	})
}
