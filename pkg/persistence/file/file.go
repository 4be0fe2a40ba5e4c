// Package file provides file-backed persistence for execution and step
// records, one JSON document per record.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/coverpath/coverpath/pkg/persistence"
)

type Persistence struct {
	executions *ExecutionRepository
	steps      *StepRepository
}

func NewPersistence(root string) *Persistence {
	return &Persistence{
		executions: &ExecutionRepository{root: root},
		steps:      &StepRepository{root: root},
	}
}

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Steps() persistence.StepRepository           { return p.steps }

func (p *Persistence) HealthCheck(context.Context) error {
	return os.MkdirAll(p.executions.root, 0750)
}

func (p *Persistence) Close(context.Context) error { return nil }

// validateExecutionID rejects ids unsafe for file paths.
func validateExecutionID(executionID string) error {
	if executionID == "" {
		return errors.New("execution ID cannot be empty")
	}

	if strings.Contains(executionID, "..") || strings.Contains(executionID, "/") || strings.Contains(executionID, "\\") {
		return errors.New("execution ID contains invalid characters")
	}

	return nil
}

type ExecutionRepository struct {
	root string
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	if err := validateExecutionID(record.ExecutionID); err != nil {
		return fmt.Errorf("invalid execution ID: %w", err)
	}

	existing, err := r.GetByID(ctx, record.ExecutionID)
	if err != nil && !persistence.IsExecutionNotFound(err) {
		return err
	}

	if existing != nil && existing.Status != record.Status && !models.ValidExecutionTransition(existing.Status, record.Status) {
		return fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidStatusTransition, existing.Status, record.Status)
	}

	err = os.MkdirAll(r.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution record %s: %w", record.ExecutionID, err)
	}

	err = os.WriteFile(filepath.Join(r.dir(), record.ExecutionID+".json"), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write execution record %s: %w", record.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, executionID string) (*models.ExecutionRecord, error) {
	if err := validateExecutionID(executionID); err != nil {
		return nil, fmt.Errorf("invalid execution ID: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(r.dir(), executionID+".json")) // #nosec G304 -- id validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to read execution record %s: %w", executionID, err)
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution record %s: %w", executionID, err)
	}

	return &record, nil
}

func (r *ExecutionRepository) List(ctx context.Context) ([]*models.ExecutionRecord, error) {
	if _, err := os.Stat(r.dir()); os.IsNotExist(err) {
		return []*models.ExecutionRecord{}, nil
	}

	entries, err := os.ReadDir(r.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	var records []*models.ExecutionRecord

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		record, err := r.GetByID(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip invalid files
			continue
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

type StepRepository struct {
	root string
}

func (r *StepRepository) dir(executionID string) string {
	return filepath.Join(r.root, "steps", executionID)
}

func (r *StepRepository) Save(_ context.Context, record *models.StepRecord) error {
	if err := validateExecutionID(record.ExecutionID); err != nil {
		return fmt.Errorf("invalid execution ID: %w", err)
	}

	dir := r.dir(record.ExecutionID)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create steps directory: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal step record %s/%d: %w", record.ExecutionID, record.StepOrder, err)
	}

	name := fmt.Sprintf("%04d.json", record.StepOrder)

	err = os.WriteFile(filepath.Join(dir, name), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write step record %s/%d: %w", record.ExecutionID, record.StepOrder, err)
	}

	return nil
}

func (r *StepRepository) ListByExecution(_ context.Context, executionID string) ([]*models.StepRecord, error) {
	if err := validateExecutionID(executionID); err != nil {
		return nil, fmt.Errorf("invalid execution ID: %w", err)
	}

	dir := r.dir(executionID)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.StepRecord{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read steps directory: %w", err)
	}

	type ordered struct {
		order  int
		record *models.StepRecord
	}

	var records []ordered

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		order, err := strconv.Atoi(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name())) // #nosec G304 -- path built from validated id
		if err != nil {
			continue
		}

		var record models.StepRecord

		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}

		records = append(records, ordered{order: order, record: &record})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].order < records[j].order
	})

	out := make([]*models.StepRecord, 0, len(records))
	for _, item := range records {
		out = append(out, item.record)
	}

	return out, nil
}
