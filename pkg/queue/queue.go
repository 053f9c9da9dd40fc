// Package queue is the durable backlog of requested runs with lease-based
// claiming. It is a thin service over the persistence port: the atomicity of
// claims is the store's contract, the policy around them lives here.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// Queue coordinates enqueue/claim/renew/done over the queue repository.
type Queue struct {
	repo   persistence.QueueRepository
	logger *slog.Logger
}

func NewQueue(repo persistence.QueueRepository, logger *slog.Logger) *Queue {
	return &Queue{
		repo:   repo,
		logger: logger.With("module", "queue"),
	}
}

// Enqueue appends a pending item for runID and returns the item id.
func (q *Queue) Enqueue(ctx context.Context, runID string, priority int) (string, error) {
	item := &models.QueueItem{
		ID:         "item-" + uuid.New().String()[:8],
		RunID:      runID,
		Priority:   priority,
		Status:     models.QueueItemStatusPending,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := q.repo.EnqueueItem(ctx, item); err != nil {
		return "", err
	}

	q.logger.DebugContext(ctx, "Enqueued run",
		"item_id", item.ID, "run_id", runID, "priority", priority)

	return item.ID, nil
}

// ClaimNext claims the next claimable item for owner, or returns
// persistence.ErrQueueEmpty.
func (q *Queue) ClaimNext(ctx context.Context, owner string, leaseDuration time.Duration) (*models.QueueItem, error) {
	item, err := q.repo.ClaimNextItem(ctx, owner, leaseDuration)
	if err != nil {
		return nil, err
	}

	q.logger.DebugContext(ctx, "Claimed queue item",
		"item_id", item.ID, "run_id", item.RunID, "owner", owner, "reclaims", item.Reclaims)

	return item, nil
}

// RenewLease extends the caller's lease. A persistence.ErrLeaseLost return
// is authoritative: the caller must stop mutating the run immediately.
func (q *Queue) RenewLease(ctx context.Context, itemID, owner string, leaseDuration time.Duration) error {
	return q.repo.RenewLease(ctx, itemID, owner, leaseDuration)
}

// MarkDone retires a claimed item after its run reached a terminal status.
func (q *Queue) MarkDone(ctx context.Context, itemID, owner string) error {
	return q.repo.MarkDone(ctx, itemID, owner)
}

// Release voluntarily returns a claimed item to pending, used for paused
// runs and graceful shutdown.
func (q *Queue) Release(ctx context.Context, itemID, owner string) error {
	return q.repo.ReleaseItem(ctx, itemID, owner)
}

// ActiveItemForRun returns the pending or claimed item for runID, or nil
// when the run has no live queue presence.
func (q *Queue) ActiveItemForRun(ctx context.Context, runID string) (*models.QueueItem, error) {
	statuses := []models.QueueItemStatus{
		models.QueueItemStatusPending,
		models.QueueItemStatusClaimed,
	}

	for _, status := range statuses {
		items, err := q.repo.QueueItems(ctx, status)
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if item.RunID == runID {
				return item, nil
			}
		}
	}

	return nil, nil
}

// ItemByID exposes a single item for inspection.
func (q *Queue) ItemByID(ctx context.Context, itemID string) (*models.QueueItem, error) {
	return q.repo.QueueItemByID(ctx, itemID)
}

// Items lists queue items by status ("" for all), for inspection tooling.
func (q *Queue) Items(ctx context.Context, status models.QueueItemStatus) ([]*models.QueueItem, error) {
	return q.repo.QueueItems(ctx, status)
}
