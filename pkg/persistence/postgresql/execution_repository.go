package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/coverpath/coverpath/pkg/persistence"
)

type ExecutionRepository struct {
	db *sql.DB
}

func (r *ExecutionRepository) Save(ctx context.Context, record *models.ExecutionRecord) error {
	var current models.ExecutionStatus

	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM workflow_executions WHERE execution_id = $1`,
		record.ExecutionID,
	).Scan(&current)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read execution status %s: %w", record.ExecutionID, err)
	case current != record.Status && !models.ValidExecutionTransition(current, record.Status):
		return fmt.Errorf("%w: %s -> %s", persistence.ErrInvalidStatusTransition, current, record.Status)
	}

	query := `
		INSERT INTO workflow_executions
			(execution_id, trigger_id, user_id, scenario_key, persona, status,
			 started_at, completed_at, step_count, result_summary, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			result_summary = EXCLUDED.result_summary,
			error_detail = EXCLUDED.error_detail
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ExecutionID,
		record.TriggerID,
		record.UserID,
		record.ScenarioKey,
		record.Persona,
		record.Status,
		record.StartedAt,
		record.CompletedAt,
		record.StepCount,
		record.ResultSummary,
		record.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution record %s: %w", record.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	query := `
		SELECT execution_id, trigger_id, user_id, scenario_key, persona, status,
		       started_at, completed_at, step_count, result_summary, error_detail
		FROM workflow_executions
		WHERE execution_id = $1
	`

	record := &models.ExecutionRecord{}

	err := r.db.QueryRowContext(ctx, query, executionID).Scan(
		&record.ExecutionID,
		&record.TriggerID,
		&record.UserID,
		&record.ScenarioKey,
		&record.Persona,
		&record.Status,
		&record.StartedAt,
		&record.CompletedAt,
		&record.StepCount,
		&record.ResultSummary,
		&record.ErrorDetail,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to get execution record %s: %w", executionID, err)
	}

	return record, nil
}

func (r *ExecutionRepository) List(ctx context.Context) ([]*models.ExecutionRecord, error) {
	query := `
		SELECT execution_id, trigger_id, user_id, scenario_key, persona, status,
		       started_at, completed_at, step_count, result_summary, error_detail
		FROM workflow_executions
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer rows.Close()

	var records []*models.ExecutionRecord

	for rows.Next() {
		record := &models.ExecutionRecord{}

		err = rows.Scan(
			&record.ExecutionID,
			&record.TriggerID,
			&record.UserID,
			&record.ScenarioKey,
			&record.Persona,
			&record.Status,
			&record.StartedAt,
			&record.CompletedAt,
			&record.StepCount,
			&record.ResultSummary,
			&record.ErrorDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution records: %w", err)
	}

	return records, nil
}
