package file

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// QueueRepository stores one JSON document per queue item under queue/.
// The store mutex makes ClaimNextItem linearizable: two concurrent claims
// can never select the same item.
type QueueRepository struct {
	store *Persistence
}

func (r *QueueRepository) EnqueueItem(_ context.Context, item *models.QueueItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.writeJSON(r.store.path("queue", item.ID+".json"), item)
}

func (r *QueueRepository) ClaimNextItem(_ context.Context, owner string, leaseDuration time.Duration) (*models.QueueItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	items, err := r.loadAllLocked()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	claimable := make([]*models.QueueItem, 0, len(items))

	for _, item := range items {
		if item.Claimable(now) {
			claimable = append(claimable, item)
		}
	}

	if len(claimable) == 0 {
		return nil, persistence.ErrQueueEmpty
	}

	// Highest priority first, FIFO within a priority band.
	sort.Slice(claimable, func(i, j int) bool {
		if claimable[i].Priority != claimable[j].Priority {
			return claimable[i].Priority > claimable[j].Priority
		}

		return claimable[i].EnqueuedAt.Before(claimable[j].EnqueuedAt)
	})

	item := claimable[0]
	if item.LeaseExpired(now) {
		item.Reclaims++
	}

	expires := now.Add(leaseDuration)
	item.Status = models.QueueItemStatusClaimed
	item.LeaseOwner = owner
	item.LeaseExpiresAt = &expires

	if err := r.store.writeJSON(r.store.path("queue", item.ID+".json"), item); err != nil {
		return nil, err
	}

	return item, nil
}

func (r *QueueRepository) RenewLease(_ context.Context, itemID, owner string, leaseDuration time.Duration) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, err := r.loadLocked(itemID)
	if err != nil {
		return err
	}

	if item.Status != models.QueueItemStatusClaimed || item.LeaseOwner != owner {
		return fmt.Errorf("%w: item %s owned by %q", persistence.ErrLeaseLost, itemID, item.LeaseOwner)
	}

	expires := time.Now().UTC().Add(leaseDuration)
	item.LeaseExpiresAt = &expires

	return r.store.writeJSON(r.store.path("queue", itemID+".json"), item)
}

func (r *QueueRepository) MarkDone(_ context.Context, itemID, owner string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, err := r.loadLocked(itemID)
	if err != nil {
		return err
	}

	if item.LeaseOwner != owner {
		return fmt.Errorf("%w: item %s owned by %q", persistence.ErrLeaseLost, itemID, item.LeaseOwner)
	}

	item.Status = models.QueueItemStatusDone
	item.LeaseOwner = ""
	item.LeaseExpiresAt = nil

	return r.store.writeJSON(r.store.path("queue", itemID+".json"), item)
}

func (r *QueueRepository) ReleaseItem(_ context.Context, itemID, owner string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, err := r.loadLocked(itemID)
	if err != nil {
		return err
	}

	if item.LeaseOwner != owner {
		return fmt.Errorf("%w: item %s owned by %q", persistence.ErrLeaseLost, itemID, item.LeaseOwner)
	}

	item.Status = models.QueueItemStatusPending
	item.LeaseOwner = ""
	item.LeaseExpiresAt = nil

	return r.store.writeJSON(r.store.path("queue", itemID+".json"), item)
}

func (r *QueueRepository) QueueItemByID(_ context.Context, itemID string) (*models.QueueItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.loadLocked(itemID)
}

func (r *QueueRepository) QueueItems(_ context.Context, status models.QueueItemStatus) ([]*models.QueueItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	items, err := r.loadAllLocked()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.QueueItem, 0, len(items))

	for _, item := range items {
		if status == "" || item.Status == status {
			filtered = append(filtered, item)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].EnqueuedAt.Before(filtered[j].EnqueuedAt)
	})

	return filtered, nil
}

func (r *QueueRepository) loadLocked(itemID string) (*models.QueueItem, error) {
	var item models.QueueItem

	err := r.store.readJSON(r.store.path("queue", itemID+".json"), &item)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrQueueItemNotFound, itemID)
		}

		return nil, persistence.NewStoreError("QueueItemByID", itemID, err)
	}

	return &item, nil
}

func (r *QueueRepository) loadAllLocked() ([]*models.QueueItem, error) {
	ids, err := r.store.listJSON("queue")
	if err != nil {
		return nil, persistence.NewStoreError("QueueItems", "", err)
	}

	items := make([]*models.QueueItem, 0, len(ids))

	for _, id := range ids {
		item, err := r.loadLocked(id)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}
