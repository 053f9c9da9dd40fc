package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	kind   string
	schema map[string]any
}

func (s *stubExecutor) Kind() string { return s.kind }

func (s *stubExecutor) Execute(_ context.Context, _ models.ExecutionScope, _ map[string]any, _ *slog.Logger) (*protocol.Result, error) {
	return &protocol.Result{Outcome: protocol.OutcomeSuccess}, nil
}

func (s *stubExecutor) Schema() map[string]any { return s.schema }

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(&stubExecutor{kind: "log"})

	executor, ok := reg.Get("log")
	require.True(t, ok)
	assert.Equal(t, "log", executor.Kind())

	_, ok = reg.Get("unknown")
	assert.False(t, ok)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry(slog.Default())

	first := &stubExecutor{kind: "log"}
	second := &stubExecutor{kind: "log"}

	reg.Register(first)
	reg.Register(second)

	executor, ok := reg.Get("log")
	require.True(t, ok)
	assert.Same(t, second, executor)
	assert.Equal(t, []string{"log"}, reg.Kinds())
}

func TestRegistry_Kinds(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(&stubExecutor{kind: "transform"})
	reg.Register(&stubExecutor{kind: "delay"})
	reg.Register(&stubExecutor{kind: "log"})

	assert.Equal(t, []string{"delay", "log", "transform"}, reg.Kinds())
}

func TestRegistry_ValidateFlow(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"message"},
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
		},
	}

	reg := NewRegistry(slog.Default())
	reg.Register(&stubExecutor{kind: "log", schema: schema})
	reg.Register(&stubExecutor{kind: "noop-success"})

	flow := &models.Flow{
		Name:        "Validation Flow",
		EntryNodeID: "a",
		Nodes: []*models.Node{
			{ID: "a", Kind: "log", Config: map[string]any{"message": "hello"}},
		},
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, reg.ValidateFlow(flow))
	})

	t.Run("unknown kind", func(t *testing.T) {
		bad := &models.Flow{
			Name:        "Bad Flow",
			EntryNodeID: "a",
			Nodes:       []*models.Node{{ID: "a", Kind: "teleport"}},
		}

		err := reg.ValidateFlow(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})

	t.Run("config fails schema", func(t *testing.T) {
		bad := &models.Flow{
			Name:        "Bad Config Flow",
			EntryNodeID: "a",
			Nodes: []*models.Node{
				{ID: "a", Kind: "log", Config: map[string]any{"message": 42}},
			},
		}

		err := reg.ValidateFlow(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema")
	})

	t.Run("nil schema skips config validation", func(t *testing.T) {
		open := &models.Flow{
			Name:        "Open Flow",
			EntryNodeID: "a",
			Nodes: []*models.Node{
				{ID: "a", Kind: "noop-success", Config: map[string]any{"anything": true}},
			},
		}

		assert.NoError(t, reg.ValidateFlow(open))
	})
}
