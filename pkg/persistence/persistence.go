// Package persistence provides the storage abstraction for execution
// and step audit records.
package persistence

import (
	"context"

	"github.com/coverpath/coverpath/pkg/models"
)

// Persistence exposes the record repositories the sequencer writes to.
// Records are append-only in spirit: once a record reaches a terminal
// status it is never revisited by the orchestrator.
type Persistence interface {
	Executions() ExecutionRepository
	Steps() StepRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ExecutionRepository stores one record per workflow run.
type ExecutionRepository interface {
	// Save upserts the record keyed by execution id. Status changes must
	// follow models.ValidExecutionTransition; a backwards move fails with
	// ErrInvalidStatusTransition.
	Save(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, executionID string) (*models.ExecutionRecord, error)
	List(ctx context.Context) ([]*models.ExecutionRecord, error)
}

// StepRepository stores one record per step, keyed by
// (execution id, step order).
type StepRepository interface {
	// Save upserts the record keyed by (execution id, step order).
	Save(ctx context.Context, record *models.StepRecord) error
	// ListByExecution returns the execution's step records ordered by
	// step order ascending.
	ListByExecution(ctx context.Context, executionID string) ([]*models.StepRecord, error)
}
