// Package postgresql provides the PostgreSQL persistence layer, the store of
// record for multi-scheduler deployments: queue claims are serialized with
// row locks and run updates are fenced with conditional writes.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
	"github.com/replaykit/replaykit/pkg/persistence"
	"github.com/replaykit/replaykit/pkg/persistence/sqlbase"
)

// Persistence implements the persistence port for PostgreSQL.
type Persistence struct {
	db        *sql.DB
	logger    *slog.Logger
	flowRepo  *FlowRepository
	runRepo   *RunRepository
	eventRepo *EventRepository
	queueRepo *QueueRepository
}

// NewPersistence connects, migrates, and returns a ready store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		flowRepo:  &FlowRepository{db: database},
		runRepo:   &RunRepository{db: database},
		eventRepo: &EventRepository{db: database},
		queueRepo: &QueueRepository{db: database},
	}, nil
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) EventRepository() persistence.EventRepository {
	return p.eventRepo
}

func (p *Persistence) QueueRepository() persistence.QueueRepository {
	return p.queueRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
