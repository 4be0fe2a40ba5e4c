// Package postgresql provides PostgreSQL persistence for execution and
// step records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/coverpath/coverpath/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // postgres driver
)

type Persistence struct {
	db         *sql.DB
	logger     *slog.Logger
	executions *ExecutionRepository
	steps      *StepRepository
}

// NewPersistence connects, runs migrations, and returns the persistence
// layer.
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
		db:         database,
		logger:     logger,
		executions: &ExecutionRepository{db: database},
		steps:      &StepRepository{db: database},
	}, nil
}

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Steps() persistence.StepRepository           { return p.steps }

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Close(context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
