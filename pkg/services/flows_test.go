package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/persistence/file"
	"github.com/replaykit/replaykit/pkg/protocol"
	"github.com/replaykit/replaykit/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopExecutor struct{ kind string }

func (e *noopExecutor) Kind() string { return e.kind }

func (e *noopExecutor) Execute(_ context.Context, _ models.ExecutionScope, _ map[string]any, _ *slog.Logger) (*protocol.Result, error) {
	return &protocol.Result{Outcome: protocol.OutcomeSuccess}, nil
}

func (e *noopExecutor) Schema() map[string]any { return nil }

func newFlowService(t *testing.T) (*Flows, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	require.NoError(t, store.HealthCheck(t.Context()))

	reg := registry.NewRegistry(slog.Default())
	reg.Register(&noopExecutor{kind: "noop-success"})

	return NewFlows(store.FlowRepository(), reg, slog.Default()), store
}

func validFlow() *models.Flow {
	return &models.Flow{
		Name:        "Service Test Flow",
		EntryNodeID: "a",
		Nodes:       []*models.Node{{ID: "a", Kind: "noop-success"}},
	}
}

func TestFlows_Create(t *testing.T) {
	service, _ := newFlowService(t)

	created, err := service.Create(t.Context(), validFlow())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Contains(t, created.ID, "flow-")
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())

	loaded, err := service.Get(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Service Test Flow", loaded.Name)
}

func TestFlows_Create_Invalid(t *testing.T) {
	service, _ := newFlowService(t)

	t.Run("nil flow", func(t *testing.T) {
		_, err := service.Create(t.Context(), nil)
		assert.True(t, IsValidationError(err))
	})

	t.Run("graph validation failure", func(t *testing.T) {
		flow := validFlow()
		flow.EntryNodeID = "missing"

		_, err := service.Create(t.Context(), flow)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("unregistered kind", func(t *testing.T) {
		flow := validFlow()
		flow.Nodes[0].Kind = "teleport"

		_, err := service.Create(t.Context(), flow)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})
}

func TestFlows_Update(t *testing.T) {
	service, _ := newFlowService(t)

	created, err := service.Create(t.Context(), validFlow())
	require.NoError(t, err)

	created.Name = "Renamed Flow"

	updated, err := service.Update(t.Context(), created)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Flow", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt, "creation time is preserved")

	t.Run("unknown flow", func(t *testing.T) {
		ghost := validFlow()
		ghost.ID = "flow-ghost"

		_, err := service.Update(t.Context(), ghost)
		assert.True(t, IsNotFoundError(err))
	})
}

func TestFlows_ListAndDelete(t *testing.T) {
	service, _ := newFlowService(t)

	first, err := service.Create(t.Context(), validFlow())
	require.NoError(t, err)

	second := validFlow()
	second.Name = "Second Flow"
	_, err = service.Create(t.Context(), second)
	require.NoError(t, err)

	all, err := service.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, service.Delete(t.Context(), first.ID))

	_, err = service.Get(t.Context(), first.ID)
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)
	assert.True(t, IsNotFoundError(err))
}
