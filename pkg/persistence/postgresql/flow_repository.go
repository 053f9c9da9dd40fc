package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/replaykit/replaykit/pkg/models"
	"github.com/replaykit/replaykit/pkg/persistence"
)

// FlowRepository stores flow definitions as JSONB documents.
type FlowRepository struct {
	db *sql.DB
}

func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return persistence.NewStoreError("SaveFlow", flow.ID, err)
	}

	query := `
		INSERT INTO flows (id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET data = $2, updated_at = $4
	`

	_, err = r.db.ExecContext(ctx, query, flow.ID, data, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		return persistence.NewStoreError("SaveFlow", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	var data []byte

	err := r.db.QueryRowContext(ctx, "SELECT data FROM flows WHERE id = $1", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrFlowNotFound, id)
		}

		return nil, persistence.NewStoreError("FlowByID", id, err)
	}

	var flow models.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, persistence.NewStoreError("FlowByID", id, err)
	}

	return &flow, nil
}

func (r *FlowRepository) Flows(ctx context.Context) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT data FROM flows ORDER BY created_at")
	if err != nil {
		return nil, persistence.NewStoreError("Flows", "", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var flows []*models.Flow

	for rows.Next() {
		var data []byte

		if err := rows.Scan(&data); err != nil {
			return nil, persistence.NewStoreError("Flows", "", err)
		}

		var flow models.Flow
		if err := json.Unmarshal(data, &flow); err != nil {
			return nil, persistence.NewStoreError("Flows", "", err)
		}

		flows = append(flows, &flow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Flows", "", err)
	}

	return flows, nil
}

func (r *FlowRepository) DeleteFlow(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("DeleteFlow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("DeleteFlow", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrFlowNotFound, id)
	}

	return nil
}
