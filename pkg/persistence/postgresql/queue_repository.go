package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// QueueRepository stores the durable run backlog. Claims are serialized with
// FOR UPDATE SKIP LOCKED so concurrent schedulers never select the same row
// and never block each other.
type QueueRepository struct {
	db *sql.DB
}

const queueColumns = `
	id, run_id, priority, status, enqueued_at, lease_owner, lease_expires_at, reclaims
`

func (r *QueueRepository) EnqueueItem(ctx context.Context, item *models.QueueItem) error {
	query := `
		INSERT INTO queue_items (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.RunID, item.Priority, item.Status, item.EnqueuedAt,
		item.LeaseOwner, item.LeaseExpiresAt, item.Reclaims)
	if err != nil {
		return persistence.NewStoreError("EnqueueItem", item.ID, err)
	}

	return nil
}

func (r *QueueRepository) ClaimNextItem(ctx context.Context, owner string, leaseDuration time.Duration) (*models.QueueItem, error) {
	expires := time.Now().UTC().Add(leaseDuration)

	// Taking over an expired claim counts as a reclaim; claiming a pending
	// item does not.
	query := `
		UPDATE queue_items SET
			status = 'claimed',
			lease_owner = $1,
			lease_expires_at = $2,
			reclaims = reclaims + CASE WHEN status = 'claimed' THEN 1 ELSE 0 END
		WHERE id = (
			SELECT id FROM queue_items
			WHERE status = 'pending'
			   OR (status = 'claimed' AND (lease_expires_at IS NULL OR lease_expires_at <= NOW()))
			ORDER BY priority DESC, enqueued_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + queueColumns

	row := r.db.QueryRowContext(ctx, query, owner, expires)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrQueueEmpty
		}

		return nil, persistence.NewStoreError("ClaimNextItem", owner, err)
	}

	return item, nil
}

func (r *QueueRepository) RenewLease(ctx context.Context, itemID, owner string, leaseDuration time.Duration) error {
	expires := time.Now().UTC().Add(leaseDuration)

	query := `
		UPDATE queue_items SET lease_expires_at = $3
		WHERE id = $1 AND lease_owner = $2 AND status = 'claimed'
	`

	return r.ownerGuardedUpdate(ctx, "RenewLease", query, itemID, owner, expires)
}

func (r *QueueRepository) MarkDone(ctx context.Context, itemID, owner string) error {
	query := `
		UPDATE queue_items SET status = 'done', lease_owner = '', lease_expires_at = NULL
		WHERE id = $1 AND lease_owner = $2
	`

	return r.ownerGuardedUpdate(ctx, "MarkDone", query, itemID, owner)
}

func (r *QueueRepository) ReleaseItem(ctx context.Context, itemID, owner string) error {
	query := `
		UPDATE queue_items SET status = 'pending', lease_owner = '', lease_expires_at = NULL
		WHERE id = $1 AND lease_owner = $2
	`

	return r.ownerGuardedUpdate(ctx, "ReleaseItem", query, itemID, owner)
}

// ownerGuardedUpdate runs an update keyed by (item, owner) and maps a zero
// row count to missing item or lost lease.
func (r *QueueRepository) ownerGuardedUpdate(ctx context.Context, op, query, itemID, owner string, extra ...any) error {
	params := append([]any{itemID, owner}, extra...)

	result, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		return persistence.NewStoreError(op, itemID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError(op, itemID, err)
	}

	if affected == 0 {
		item, lookupErr := r.QueueItemByID(ctx, itemID)
		if lookupErr != nil {
			return lookupErr
		}

		return fmt.Errorf("%w: item %s owned by %q",
			persistence.ErrLeaseLost, itemID, item.LeaseOwner)
	}

	return nil
}

func (r *QueueRepository) QueueItemByID(ctx context.Context, itemID string) (*models.QueueItem, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+queueColumns+" FROM queue_items WHERE id = $1", itemID)

	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrQueueItemNotFound, itemID)
		}

		return nil, persistence.NewStoreError("QueueItemByID", itemID, err)
	}

	return item, nil
}

func (r *QueueRepository) QueueItems(ctx context.Context, status models.QueueItemStatus) ([]*models.QueueItem, error) {
	query := "SELECT " + queueColumns + " FROM queue_items"
	params := []any{}

	if status != "" {
		query += " WHERE status = $1"
		params = append(params, status)
	}

	query += " ORDER BY enqueued_at ASC"

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, persistence.NewStoreError("QueueItems", "", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []*models.QueueItem

	for rows.Next() {
		var item models.QueueItem

		err := rows.Scan(&item.ID, &item.RunID, &item.Priority, &item.Status,
			&item.EnqueuedAt, &item.LeaseOwner, &item.LeaseExpiresAt, &item.Reclaims)
		if err != nil {
			return nil, persistence.NewStoreError("QueueItems", "", err)
		}

		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("QueueItems", "", err)
	}

	return items, nil
}

func scanQueueItem(row *sql.Row) (*models.QueueItem, error) {
	var item models.QueueItem

	err := row.Scan(&item.ID, &item.RunID, &item.Priority, &item.Status,
		&item.EnqueuedAt, &item.LeaseOwner, &item.LeaseExpiresAt, &item.Reclaims)
	if err != nil {
		return nil, err
	}

	return &item, nil
}
