package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

const uniqueViolation = "23505"

// RunRepository stores run records. Conditional updates on lease_owner are
// the fencing mechanism that keeps a stale runner from writing after its
// lease moved.
type RunRepository struct {
	db *sql.DB
}

const runColumns = `
	id, flow_id, status, current_node_id, attempt, max_attempts, next_seq,
	args, pending_control, lease_owner, error_kind, error_detail,
	created_at, updated_at, started_at, finished_at
`

func (r *RunRepository) CreateRun(ctx context.Context, run *models.RunRecord) error {
	args, err := json.Marshal(run.Args)
	if err != nil {
		return persistence.NewStoreError("CreateRun", run.ID, err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.FlowID, run.Status, run.CurrentNodeID, run.Attempt,
		run.MaxAttempts, run.NextSeq, args, run.PendingControl, run.LeaseOwner,
		run.ErrorKind, run.ErrorDetail, run.CreatedAt, run.UpdatedAt,
		run.StartedAt, run.FinishedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", persistence.ErrRunAlreadyExists, run.ID)
		}

		return persistence.NewStoreError("CreateRun", run.ID, err)
	}

	return nil
}

func (r *RunRepository) RunByID(ctx context.Context, id string) (*models.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = $1", id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrRunNotFound, id)
		}

		return nil, persistence.NewStoreError("RunByID", id, err)
	}

	return run, nil
}

func (r *RunRepository) UpdateRun(ctx context.Context, run *models.RunRecord, expectedOwner string) error {
	args, err := json.Marshal(run.Args)
	if err != nil {
		return persistence.NewStoreError("UpdateRun", run.ID, err)
	}

	run.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE runs SET
			status = $2, current_node_id = $3, attempt = $4, max_attempts = $5,
			next_seq = $6, args = $7, pending_control = $8, error_kind = $9,
			error_detail = $10, updated_at = $11, started_at = $12, finished_at = $13
		WHERE id = $1
	`
	params := []any{
		run.ID, run.Status, run.CurrentNodeID, run.Attempt, run.MaxAttempts,
		run.NextSeq, args, run.PendingControl, run.ErrorKind,
		run.ErrorDetail, run.UpdatedAt, run.StartedAt, run.FinishedAt,
	}

	if expectedOwner != "" {
		query += " AND lease_owner = $14"
		params = append(params, expectedOwner)
	}

	result, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		return persistence.NewStoreError("UpdateRun", run.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("UpdateRun", run.ID, err)
	}

	if affected == 0 {
		if _, lookupErr := r.RunByID(ctx, run.ID); lookupErr != nil {
			return lookupErr
		}

		return fmt.Errorf("%w: run %s no longer owned by %q",
			persistence.ErrLeaseLost, run.ID, expectedOwner)
	}

	return nil
}

func (r *RunRepository) AssignRunOwner(ctx context.Context, runID, owner string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE runs SET lease_owner = $2, updated_at = NOW() WHERE id = $1", runID, owner)
	if err != nil {
		return persistence.NewStoreError("AssignRunOwner", runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("AssignRunOwner", runID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrRunNotFound, runID)
	}

	return nil
}

func (r *RunRepository) RequestControl(ctx context.Context, runID string, req models.ControlRequest) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE runs SET pending_control = $2, updated_at = NOW() WHERE id = $1", runID, req)
	if err != nil {
		return persistence.NewStoreError("RequestControl", runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("RequestControl", runID, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrRunNotFound, runID)
	}

	return nil
}

func scanRun(row *sql.Row) (*models.RunRecord, error) {
	var (
		run  models.RunRecord
		args []byte
	)

	err := row.Scan(
		&run.ID, &run.FlowID, &run.Status, &run.CurrentNodeID, &run.Attempt,
		&run.MaxAttempts, &run.NextSeq, &args, &run.PendingControl,
		&run.LeaseOwner, &run.ErrorKind, &run.ErrorDetail,
		&run.CreatedAt, &run.UpdatedAt, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		if err := json.Unmarshal(args, &run.Args); err != nil {
			return nil, err
		}
	}

	return &run, nil
}
