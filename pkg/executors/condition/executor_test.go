package condition

import (
	"log/slog"
	"testing"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Kind(t *testing.T) {
	assert.Equal(t, "condition", NewExecutor().Kind())
	assert.NotNil(t, NewExecutor().Schema())
}

func TestExecutor_Execute(t *testing.T) {
	executor := NewExecutor()

	tests := []struct {
		name      string
		condition any
		expected  models.EdgeLabel
	}{
		{name: "bool true", condition: true, expected: models.EdgeLabelTrue},
		{name: "bool false", condition: false, expected: models.EdgeLabelFalse},
		{name: "parseable string", condition: "true", expected: models.EdgeLabelTrue},
		{name: "non-empty string", condition: "anything", expected: models.EdgeLabelTrue},
		{name: "empty string", condition: "", expected: models.EdgeLabelFalse},
		{name: "non-zero number", condition: 3.14, expected: models.EdgeLabelTrue},
		{name: "zero number", condition: 0.0, expected: models.EdgeLabelFalse},
		{name: "non-empty list", condition: []any{1}, expected: models.EdgeLabelTrue},
		{name: "empty list", condition: []any{}, expected: models.EdgeLabelFalse},
		{name: "non-empty map", condition: map[string]any{"k": "v"}, expected: models.EdgeLabelTrue},
		{name: "nil", condition: nil, expected: models.EdgeLabelFalse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := executor.Execute(t.Context(), models.ExecutionScope{},
				map[string]any{"condition": tt.condition}, slog.Default())
			require.NoError(t, err)

			assert.Equal(t, protocol.OutcomeSuccess, result.Outcome)
			assert.Equal(t, tt.expected, result.Next)
			assert.Equal(t, tt.expected == models.EdgeLabelTrue, result.Output["condition_result"])
		})
	}
}

func TestExecutor_Execute_MissingCondition(t *testing.T) {
	_, err := NewExecutor().Execute(t.Context(), models.ExecutionScope{}, map[string]any{}, slog.Default())
	assert.ErrorIs(t, err, ErrConditionMissing)
}
