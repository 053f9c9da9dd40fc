package queue

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return NewQueue(store.QueueRepository(), slog.Default())
}

func TestQueue_Enqueue(t *testing.T) {
	q := newTestQueue(t)

	itemID, err := q.Enqueue(t.Context(), "run-1", 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(itemID, "item-"))

	item, err := q.ItemByID(t.Context(), itemID)
	require.NoError(t, err)
	assert.Equal(t, "run-1", item.RunID)
	assert.Equal(t, 3, item.Priority)
	assert.Equal(t, models.QueueItemStatusPending, item.Status)
}

func TestQueue_ClaimNext(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.ClaimNext(t.Context(), "eng-1", time.Minute)
	assert.ErrorIs(t, err, persistence.ErrQueueEmpty)

	itemID, err := q.Enqueue(t.Context(), "run-1", 0)
	require.NoError(t, err)

	item, err := q.ClaimNext(t.Context(), "eng-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, itemID, item.ID)
	assert.Equal(t, "eng-1", item.LeaseOwner)

	require.NoError(t, q.Release(t.Context(), itemID, "eng-1"))

	item, err = q.ItemByID(t.Context(), itemID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueItemStatusPending, item.Status)
}

func TestQueue_ActiveItemForRun(t *testing.T) {
	q := newTestQueue(t)

	active, err := q.ActiveItemForRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	itemID, err := q.Enqueue(t.Context(), "run-1", 0)
	require.NoError(t, err)

	active, err = q.ActiveItemForRun(t.Context(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, itemID, active.ID)

	_, err = q.ClaimNext(t.Context(), "eng-1", time.Minute)
	require.NoError(t, err)

	active, err = q.ActiveItemForRun(t.Context(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, active, "claimed items are still live")

	require.NoError(t, q.MarkDone(t.Context(), itemID, "eng-1"))

	active, err = q.ActiveItemForRun(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, active)
}
