// Package memory provides an in-memory persistence implementation used
// by tests and broker-less local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/coverpath/coverpath/pkg/persistence"
)

type Persistence struct {
	executions *ExecutionRepository
	steps      *StepRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		executions: &ExecutionRepository{records: make(map[string]models.ExecutionRecord)},
		steps:      &StepRepository{records: make(map[string]map[int]models.StepRecord)},
	}
}

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Steps() persistence.StepRepository           { return p.steps }
func (p *Persistence) HealthCheck(context.Context) error           { return nil }
func (p *Persistence) Close(context.Context) error                 { return nil }

type ExecutionRepository struct {
	mu      sync.RWMutex
	records map[string]models.ExecutionRecord
}

func (r *ExecutionRepository) Save(_ context.Context, record *models.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[record.ExecutionID]
	if ok && existing.Status != record.Status && !models.ValidExecutionTransition(existing.Status, record.Status) {
		return fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidStatusTransition, existing.Status, record.Status)
	}

	r.records[record.ExecutionID] = *record

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, executionID string) (*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[executionID]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return &record, nil
}

func (r *ExecutionRepository) List(_ context.Context) ([]*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*models.ExecutionRecord, 0, len(r.records))
	for id := range r.records {
		record := r.records[id]
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

type StepRepository struct {
	mu      sync.RWMutex
	records map[string]map[int]models.StepRecord
}

func (r *StepRepository) Save(_ context.Context, record *models.StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps, ok := r.records[record.ExecutionID]
	if !ok {
		steps = make(map[int]models.StepRecord)
		r.records[record.ExecutionID] = steps
	}

	steps[record.StepOrder] = *record

	return nil
}

func (r *StepRepository) ListByExecution(_ context.Context, executionID string) ([]*models.StepRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := r.records[executionID]

	records := make([]*models.StepRecord, 0, len(steps))
	for order := range steps {
		record := steps[order]
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StepOrder < records[j].StepOrder
	})

	return records, nil
}
