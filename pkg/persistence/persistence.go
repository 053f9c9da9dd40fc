// Package persistence defines the storage port consumed by the execution
// kernel. The kernel never sees a storage engine directly; it sees these
// narrow repository interfaces plus the sentinel errors in errors.go.
package persistence

import (
	"context"
	"time"

	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/models"
)

// FlowRepository stores flow definitions. Flows are written by recording and
// authoring tools and never mutated by the kernel.
type FlowRepository interface {
	SaveFlow(ctx context.Context, flow *models.Flow) error
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
	Flows(ctx context.Context) ([]*models.Flow, error)
	DeleteFlow(ctx context.Context, id string) error
}

// RunRepository stores run records. UpdateRun with a non-empty expectedOwner
// is a conditional write: it fails with ErrLeaseLost unless the stored
// record's lease owner still matches, which is how a runner that lost its
// lease is fenced off from further mutation.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.RunRecord) error
	RunByID(ctx context.Context, id string) (*models.RunRecord, error)
	UpdateRun(ctx context.Context, run *models.RunRecord, expectedOwner string) error

	// AssignRunOwner stamps the current lease holder onto the run record.
	// The queue claim is the arbiter of ownership; this mirror exists so
	// UpdateRun can fence stale owners.
	AssignRunOwner(ctx context.Context, runID, owner string) error

	// RequestControl records a pending pause/cancel request. Last writer
	// wins; the runner consumes the request at the next node boundary.
	RequestControl(ctx context.Context, runID string, req models.ControlRequest) error
}

// EventRepository stores the append-only run event log. Append must reject a
// duplicate (run, seq) pair with ErrSequenceConflict so two writers can
// never interleave events under the same sequence number.
type EventRepository interface {
	AppendEvent(ctx context.Context, event *events.RunEvent) error
	ListEvents(ctx context.Context, runID string, sinceSeq int64) ([]*events.RunEvent, error)
}

// QueueRepository stores the durable run backlog. ClaimNextItem must be
// atomic: concurrent calls never return the same item. Lease operations with
// a mismatched owner fail with ErrLeaseLost, an expected steady-state return,
// not an anomaly.
type QueueRepository interface {
	EnqueueItem(ctx context.Context, item *models.QueueItem) error

	// ClaimNextItem hands the caller the highest-priority pending item, or
	// any claimed item whose lease has expired, ties broken by EnqueuedAt
	// ascending. Returns ErrQueueEmpty when nothing is claimable.
	ClaimNextItem(ctx context.Context, owner string, leaseDuration time.Duration) (*models.QueueItem, error)

	RenewLease(ctx context.Context, itemID, owner string, leaseDuration time.Duration) error
	MarkDone(ctx context.Context, itemID, owner string) error

	// ReleaseItem is the voluntary give-back: the item returns to pending
	// without counting as a reclaim.
	ReleaseItem(ctx context.Context, itemID, owner string) error

	QueueItemByID(ctx context.Context, itemID string) (*models.QueueItem, error)
	QueueItems(ctx context.Context, status models.QueueItemStatus) ([]*models.QueueItem, error)
}

// Persistence aggregates the repositories behind one storage engine.
type Persistence interface {
	FlowRepository() FlowRepository
	RunRepository() RunRepository
	EventRepository() EventRepository
	QueueRepository() QueueRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
