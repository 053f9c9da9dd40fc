//go:build integration
// +build integration

package postgresql

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func TestMain(m *testing.M) {
	code := m.Run()

	if postgresContainer != nil {
		_ = postgresContainer.Terminate(context.Background())
	}

	os.Exit(code)
}

func setupTestDB(t *testing.T) *Persistence {
	t.Helper()

	ctx := context.Background()

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("replaykit_test"),
			postgres.WithUsername("replaykit"),
			postgres.WithPassword("replaykit"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"run_events", "queue_items", "runs", "flows"} {
		_, err = store.db.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE")
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	return store
}

func TestPersistence_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	assert.NoError(t, store.HealthCheck(t.Context()))
}

func TestFlowRepository_Postgres(t *testing.T) {
	store := setupTestDB(t)
	repo := store.FlowRepository()

	flow := &models.Flow{
		ID:          "flow-pg",
		Name:        "Postgres Flow",
		EntryNodeID: "a",
		Nodes:       []*models.Node{{ID: "a", Kind: "noop-success"}},
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	require.NoError(t, repo.SaveFlow(t.Context(), flow))

	loaded, err := repo.FlowByID(t.Context(), "flow-pg")
	require.NoError(t, err)
	assert.Equal(t, "Postgres Flow", loaded.Name)
	assert.Len(t, loaded.Nodes, 1)

	flow.Name = "Renamed Flow"
	require.NoError(t, repo.SaveFlow(t.Context(), flow))

	loaded, err = repo.FlowByID(t.Context(), "flow-pg")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Flow", loaded.Name)

	all, err := repo.Flows(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.DeleteFlow(t.Context(), "flow-pg"))

	_, err = repo.FlowByID(t.Context(), "flow-pg")
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestRunRepository_Postgres(t *testing.T) {
	store := setupTestDB(t)
	repo := store.RunRepository()

	run := &models.RunRecord{
		ID:        "run-pg",
		FlowID:    "flow-pg",
		Status:    models.RunStatusQueued,
		NextSeq:   1,
		Args:      map[string]any{"user": "alice"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, repo.CreateRun(t.Context(), run))
	assert.ErrorIs(t, repo.CreateRun(t.Context(), run), persistence.ErrRunAlreadyExists)

	loaded, err := repo.RunByID(t.Context(), "run-pg")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, loaded.Status)
	assert.Equal(t, map[string]any{"user": "alice"}, loaded.Args)

	t.Run("owner fencing", func(t *testing.T) {
		require.NoError(t, repo.AssignRunOwner(t.Context(), "run-pg", "eng-a"))

		run.Status = models.RunStatusRunning
		run.LeaseOwner = "eng-a"
		require.NoError(t, repo.UpdateRun(t.Context(), run, "eng-a"))

		err := repo.UpdateRun(t.Context(), run, "eng-b")
		assert.ErrorIs(t, err, persistence.ErrLeaseLost)
	})

	t.Run("control request round trip", func(t *testing.T) {
		require.NoError(t, repo.RequestControl(t.Context(), "run-pg", models.ControlPause))

		loaded, err := repo.RunByID(t.Context(), "run-pg")
		require.NoError(t, err)
		assert.Equal(t, models.ControlPause, loaded.PendingControl)
	})

	_, err = repo.RunByID(t.Context(), "run-ghost")
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestEventRepository_Postgres(t *testing.T) {
	store := setupTestDB(t)
	repo := store.EventRepository()

	for seq := int64(1); seq <= 3; seq++ {
		event := events.New("run-pg", seq, events.RunNodeStarted)
		event.NodeID = "a"
		require.NoError(t, repo.AppendEvent(t.Context(), event))
	}

	err := repo.AppendEvent(t.Context(), events.New("run-pg", 2, events.RunNodeCompleted))
	assert.ErrorIs(t, err, persistence.ErrSequenceConflict)

	log, err := repo.ListEvents(t.Context(), "run-pg", 0)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.True(t, events.Contiguous(log))

	log, err = repo.ListEvents(t.Context(), "run-pg", 2)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, int64(3), log[0].Seq)
}

func TestQueueRepository_Postgres(t *testing.T) {
	store := setupTestDB(t)
	repo := store.QueueRepository()
	base := time.Now().UTC()

	items := []*models.QueueItem{
		{ID: "item-low", RunID: "run-1", Priority: 0, Status: models.QueueItemStatusPending, EnqueuedAt: base},
		{ID: "item-high", RunID: "run-2", Priority: 5, Status: models.QueueItemStatusPending, EnqueuedAt: base.Add(time.Second)},
	}
	for _, item := range items {
		require.NoError(t, repo.EnqueueItem(t.Context(), item))
	}

	t.Run("priority order", func(t *testing.T) {
		first, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "item-high", first.ID)
		assert.Equal(t, "eng-a", first.LeaseOwner)
	})

	t.Run("lease operations are owner fenced", func(t *testing.T) {
		assert.NoError(t, repo.RenewLease(t.Context(), "item-high", "eng-a", time.Minute))
		assert.ErrorIs(t, repo.RenewLease(t.Context(), "item-high", "eng-b", time.Minute), persistence.ErrLeaseLost)
		assert.ErrorIs(t, repo.MarkDone(t.Context(), "item-high", "eng-b"), persistence.ErrLeaseLost)
		assert.NoError(t, repo.MarkDone(t.Context(), "item-high", "eng-a"))
	})

	t.Run("expired lease reclaim increments reclaims", func(t *testing.T) {
		_, err := repo.ClaimNextItem(t.Context(), "eng-dead", 10*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)

		reclaimed, err := repo.ClaimNextItem(t.Context(), "eng-alive", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "item-low", reclaimed.ID)
		assert.Equal(t, 1, reclaimed.Reclaims)
	})

	t.Run("empty queue", func(t *testing.T) {
		_, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
		assert.ErrorIs(t, err, persistence.ErrQueueEmpty)
	})

	t.Run("status filter", func(t *testing.T) {
		done, err := repo.QueueItems(t.Context(), models.QueueItemStatusDone)
		require.NoError(t, err)
		assert.Len(t, done, 1)

		_, err = repo.QueueItemByID(t.Context(), "item-ghost")
		assert.ErrorIs(t, err, persistence.ErrQueueItemNotFound)
	})
}
