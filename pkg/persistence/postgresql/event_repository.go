package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/replaykit/replaykit/pkg/events"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// EventRepository stores the append-only run event log. The (run_id, seq)
// primary key enforces the no-interleaving contract at the database level.
type EventRepository struct {
	db *sql.DB
}

func (r *EventRepository) AppendEvent(ctx context.Context, event *events.RunEvent) error {
	output, err := json.Marshal(event.Output)
	if err != nil {
		return persistence.NewStoreError("AppendEvent", event.RunID, err)
	}

	query := `
		INSERT INTO run_events (
			run_id, seq, type, timestamp, node_id, kind, attempt,
			output, next, error_kind, error_detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.RunID, event.Seq, event.Type, event.Timestamp, event.NodeID,
		event.Kind, event.Attempt, output, event.Next,
		event.ErrorKind, event.ErrorDetail)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: run %s seq %d",
				persistence.ErrSequenceConflict, event.RunID, event.Seq)
		}

		return persistence.NewStoreError("AppendEvent", event.RunID, err)
	}

	return nil
}

func (r *EventRepository) ListEvents(ctx context.Context, runID string, sinceSeq int64) ([]*events.RunEvent, error) {
	query := `
		SELECT run_id, seq, type, timestamp, node_id, kind, attempt,
		       output, next, error_kind, error_detail
		FROM run_events
		WHERE run_id = $1 AND seq > $2
		ORDER BY seq ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID, sinceSeq)
	if err != nil {
		return nil, persistence.NewStoreError("ListEvents", runID, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var log []*events.RunEvent

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListEvents", runID, err)
		}

		log = append(log, event)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListEvents", runID, err)
	}

	return log, nil
}

func scanEvent(rows *sql.Rows) (*events.RunEvent, error) {
	var (
		event  events.RunEvent
		output []byte
	)

	err := rows.Scan(
		&event.RunID, &event.Seq, &event.Type, &event.Timestamp,
		&event.NodeID, &event.Kind, &event.Attempt, &output,
		&event.Next, &event.ErrorKind, &event.ErrorDetail)
	if err != nil {
		return nil, err
	}

	if len(output) > 0 {
		if err := json.Unmarshal(output, &event.Output); err != nil {
			return nil, err
		}
	}

	return &event, nil
}
