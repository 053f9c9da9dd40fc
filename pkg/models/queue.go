package models

import "time"

// QueueItemStatus is the lifecycle state of a queue item.
type QueueItemStatus string

const (
	QueueItemStatusPending QueueItemStatus = "pending"
	QueueItemStatusClaimed QueueItemStatus = "claimed"
	QueueItemStatusDone    QueueItemStatus = "done"
)

// QueueItem is one pending run in the durable backlog. The lease fields
// embed the ownership claim: a non-expired lease is a time-bounded exclusive
// claim, renewable by heartbeat, and the sole mechanism preventing two
// schedulers from executing the same item. This is a single-node
// crash-recovery mechanism over one atomically updatable store, not a
// distributed consensus protocol.
type QueueItem struct {
	ID             string          `json:"id"`
	RunID          string          `json:"run_id" validate:"required"`
	Priority       int             `json:"priority"`
	Status         QueueItemStatus `json:"status"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	LeaseOwner     string          `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`

	// Reclaims counts lease-expiry takeovers. Once it passes the scheduler's
	// bound the run is abandoned as failed instead of reclaimed forever.
	Reclaims int `json:"reclaims"`
}

// LeaseExpired reports whether a claimed item's lease has lapsed at now.
func (q *QueueItem) LeaseExpired(now time.Time) bool {
	return q.Status == QueueItemStatusClaimed &&
		(q.LeaseExpiresAt == nil || !q.LeaseExpiresAt.After(now))
}

// Claimable reports whether the item may be handed to owner at now: either
// it is pending, or its current claim has expired.
func (q *QueueItem) Claimable(now time.Time) bool {
	return q.Status == QueueItemStatusPending || q.LeaseExpired(now)
}
