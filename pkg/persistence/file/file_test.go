package file

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Persistence {
	t.Helper()

	store := NewPersistence(t.TempDir())
	require.NoError(t, store.HealthCheck(t.Context()))

	return store
}

func TestFlowRepository_CRUD(t *testing.T) {
	store := newTestStore(t)
	repo := store.FlowRepository()

	flow := &models.Flow{
		ID:          "flow-1",
		Name:        "Test Flow",
		EntryNodeID: "a",
		Nodes:       []*models.Node{{ID: "a", Kind: "noop-success"}},
	}

	require.NoError(t, repo.SaveFlow(t.Context(), flow))

	loaded, err := repo.FlowByID(t.Context(), "flow-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Flow", loaded.Name)
	assert.Len(t, loaded.Nodes, 1)

	all, err := repo.Flows(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.DeleteFlow(t.Context(), "flow-1"))

	_, err = repo.FlowByID(t.Context(), "flow-1")
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestRunRepository_CreateAndLoad(t *testing.T) {
	store := newTestStore(t)
	repo := store.RunRepository()

	run := &models.RunRecord{
		ID:      "run-1",
		FlowID:  "flow-1",
		Status:  models.RunStatusQueued,
		NextSeq: 1,
	}

	require.NoError(t, repo.CreateRun(t.Context(), run))

	err := repo.CreateRun(t.Context(), run)
	assert.ErrorIs(t, err, persistence.ErrRunAlreadyExists)

	loaded, err := repo.RunByID(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, loaded.Status)
	assert.Equal(t, int64(1), loaded.NextSeq)

	_, err = repo.RunByID(t.Context(), "run-missing")
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestRunRepository_UpdateRunFencing(t *testing.T) {
	store := newTestStore(t)
	repo := store.RunRepository()

	run := &models.RunRecord{ID: "run-1", FlowID: "flow-1", Status: models.RunStatusQueued, NextSeq: 1}
	require.NoError(t, repo.CreateRun(t.Context(), run))
	require.NoError(t, repo.AssignRunOwner(t.Context(), "run-1", "eng-a"))

	run.Status = models.RunStatusRunning
	run.LeaseOwner = "eng-a"
	require.NoError(t, repo.UpdateRun(t.Context(), run, "eng-a"))

	t.Run("stale owner is fenced", func(t *testing.T) {
		stale := *run
		stale.Status = models.RunStatusFailed

		err := repo.UpdateRun(t.Context(), &stale, "eng-b")
		assert.ErrorIs(t, err, persistence.ErrLeaseLost)

		current, err := repo.RunByID(t.Context(), "run-1")
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusRunning, current.Status)
	})

	t.Run("empty expected owner skips fencing", func(t *testing.T) {
		run.Status = models.RunStatusPaused
		assert.NoError(t, repo.UpdateRun(t.Context(), run, ""))
	})

	t.Run("ownership handover fences the old owner", func(t *testing.T) {
		require.NoError(t, repo.AssignRunOwner(t.Context(), "run-1", "eng-b"))

		err := repo.UpdateRun(t.Context(), run, "eng-a")
		assert.ErrorIs(t, err, persistence.ErrLeaseLost)
	})
}

func TestRunRepository_RequestControl(t *testing.T) {
	store := newTestStore(t)
	repo := store.RunRepository()

	run := &models.RunRecord{ID: "run-1", FlowID: "flow-1", Status: models.RunStatusRunning, NextSeq: 1}
	require.NoError(t, repo.CreateRun(t.Context(), run))

	require.NoError(t, repo.RequestControl(t.Context(), "run-1", models.ControlCancel))

	loaded, err := repo.RunByID(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.ControlCancel, loaded.PendingControl)

	require.NoError(t, repo.RequestControl(t.Context(), "run-1", models.ControlNone))

	loaded, err = repo.RunByID(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.ControlNone, loaded.PendingControl)

	err = repo.RequestControl(t.Context(), "run-missing", models.ControlPause)
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestEventRepository_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	repo := store.EventRepository()

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, repo.AppendEvent(t.Context(), events.New("run-1", seq, events.RunNodeStarted)))
	}

	t.Run("duplicate seq is rejected", func(t *testing.T) {
		err := repo.AppendEvent(t.Context(), events.New("run-1", 2, events.RunNodeCompleted))
		assert.ErrorIs(t, err, persistence.ErrSequenceConflict)
	})

	t.Run("list returns ordered log", func(t *testing.T) {
		log, err := repo.ListEvents(t.Context(), "run-1", 0)
		require.NoError(t, err)
		require.Len(t, log, 3)
		assert.True(t, events.Contiguous(log))
	})

	t.Run("sinceSeq filters earlier events", func(t *testing.T) {
		log, err := repo.ListEvents(t.Context(), "run-1", 2)
		require.NoError(t, err)
		require.Len(t, log, 1)
		assert.Equal(t, int64(3), log[0].Seq)
	})

	t.Run("unknown run has an empty log", func(t *testing.T) {
		log, err := repo.ListEvents(t.Context(), "run-missing", 0)
		require.NoError(t, err)
		assert.Empty(t, log)
	})
}

func enqueueItem(t *testing.T, store *Persistence, id, runID string, priority int, enqueuedAt time.Time) {
	t.Helper()

	err := store.QueueRepository().EnqueueItem(t.Context(), &models.QueueItem{
		ID:         id,
		RunID:      runID,
		Priority:   priority,
		Status:     models.QueueItemStatusPending,
		EnqueuedAt: enqueuedAt,
	})
	require.NoError(t, err)
}

func TestQueueRepository_ClaimOrdering(t *testing.T) {
	store := newTestStore(t)
	repo := store.QueueRepository()
	base := time.Now().UTC()

	enqueueItem(t, store, "item-low", "run-low", 0, base)
	enqueueItem(t, store, "item-high", "run-high", 5, base.Add(time.Second))
	enqueueItem(t, store, "item-low-older", "run-low-older", 0, base.Add(-time.Second))

	first, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "item-high", first.ID, "highest priority wins")

	second, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "item-low-older", second.ID, "FIFO within a priority band")

	third, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "item-low", third.ID)

	_, err = repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
	assert.ErrorIs(t, err, persistence.ErrQueueEmpty)
}

func TestQueueRepository_LeaseLifecycle(t *testing.T) {
	store := newTestStore(t)
	repo := store.QueueRepository()

	enqueueItem(t, store, "item-1", "run-1", 0, time.Now().UTC())

	item, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, models.QueueItemStatusClaimed, item.Status)
	assert.Equal(t, "eng-a", item.LeaseOwner)
	assert.Equal(t, 0, item.Reclaims)

	t.Run("claimed item is not claimable again", func(t *testing.T) {
		_, err := repo.ClaimNextItem(t.Context(), "eng-b", time.Minute)
		assert.ErrorIs(t, err, persistence.ErrQueueEmpty)
	})

	t.Run("only the owner can renew", func(t *testing.T) {
		assert.NoError(t, repo.RenewLease(t.Context(), "item-1", "eng-a", time.Minute))
		assert.ErrorIs(t, repo.RenewLease(t.Context(), "item-1", "eng-b", time.Minute), persistence.ErrLeaseLost)
	})

	t.Run("only the owner can release", func(t *testing.T) {
		assert.ErrorIs(t, repo.ReleaseItem(t.Context(), "item-1", "eng-b"), persistence.ErrLeaseLost)
		assert.NoError(t, repo.ReleaseItem(t.Context(), "item-1", "eng-a"))

		released, err := repo.QueueItemByID(t.Context(), "item-1")
		require.NoError(t, err)
		assert.Equal(t, models.QueueItemStatusPending, released.Status)
		assert.Equal(t, 0, released.Reclaims, "voluntary release is not a reclaim")
	})

	t.Run("mark done retires the item", func(t *testing.T) {
		item, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
		require.NoError(t, err)
		require.NoError(t, repo.MarkDone(t.Context(), item.ID, "eng-a"))

		done, err := repo.QueueItemByID(t.Context(), item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.QueueItemStatusDone, done.Status)

		_, err = repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
		assert.ErrorIs(t, err, persistence.ErrQueueEmpty)
	})
}

func TestQueueRepository_ExpiredLeaseReclaim(t *testing.T) {
	store := newTestStore(t)
	repo := store.QueueRepository()

	enqueueItem(t, store, "item-1", "run-1", 0, time.Now().UTC())

	// A very short lease stands in for a crashed owner.
	_, err := repo.ClaimNextItem(t.Context(), "eng-dead", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	reclaimed, err := repo.ClaimNextItem(t.Context(), "eng-alive", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "item-1", reclaimed.ID)
	assert.Equal(t, "eng-alive", reclaimed.LeaseOwner)
	assert.Equal(t, 1, reclaimed.Reclaims)

	err = repo.RenewLease(t.Context(), "item-1", "eng-dead", time.Minute)
	assert.ErrorIs(t, err, persistence.ErrLeaseLost, "the dead owner is fenced off")
}

func TestQueueRepository_ConcurrentClaims(t *testing.T) {
	store := newTestStore(t)
	repo := store.QueueRepository()

	const itemCount = 20

	base := time.Now().UTC()
	for i := range itemCount {
		enqueueItem(t, store, fmt.Sprintf("item-%02d", i), fmt.Sprintf("run-%02d", i), 0, base.Add(time.Duration(i)*time.Millisecond))
	}

	var (
		mu         sync.Mutex
		claimed    = make(map[string]string)
		duplicates []string
		wg         sync.WaitGroup
	)

	for worker := range 8 {
		wg.Add(1)

		go func(owner string) {
			defer wg.Done()

			for {
				item, err := repo.ClaimNextItem(t.Context(), owner, time.Minute)
				if err != nil {
					return
				}

				mu.Lock()
				if _, duplicate := claimed[item.ID]; duplicate {
					duplicates = append(duplicates, item.ID)
				}

				claimed[item.ID] = owner
				mu.Unlock()
			}
		}(fmt.Sprintf("eng-%d", worker))
	}

	wg.Wait()

	assert.Empty(t, duplicates, "no item may be claimed twice")
	assert.Len(t, claimed, itemCount, "every item claimed exactly once")
}

func TestQueueRepository_QueueItems(t *testing.T) {
	store := newTestStore(t)
	repo := store.QueueRepository()
	base := time.Now().UTC()

	enqueueItem(t, store, "item-1", "run-1", 0, base)
	enqueueItem(t, store, "item-2", "run-2", 0, base.Add(time.Second))

	_, err := repo.ClaimNextItem(t.Context(), "eng-a", time.Minute)
	require.NoError(t, err)

	all, err := repo.QueueItems(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := repo.QueueItems(t.Context(), models.QueueItemStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "item-2", pending[0].ID)

	_, err = repo.QueueItemByID(t.Context(), "item-missing")
	assert.ErrorIs(t, err, persistence.ErrQueueItemNotFound)
}
