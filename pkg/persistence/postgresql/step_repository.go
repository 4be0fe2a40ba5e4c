package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/coverpath/coverpath/pkg/models"
)

type StepRepository struct {
	db *sql.DB
}

func (r *StepRepository) Save(ctx context.Context, record *models.StepRecord) error {
	inputSnapshot, err := marshalNullable(record.InputSnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode input snapshot for %s/%d: %w", record.ExecutionID, record.StepOrder, err)
	}

	outputSnapshot, err := marshalNullable(record.OutputSnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode output snapshot for %s/%d: %w", record.ExecutionID, record.StepOrder, err)
	}

	query := `
		INSERT INTO workflow_steps
			(execution_id, step_order, step_name, status, started_at,
			 completed_at, duration_ms, input_snapshot, output_snapshot, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (execution_id, step_order) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			output_snapshot = EXCLUDED.output_snapshot,
			error_detail = EXCLUDED.error_detail
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ExecutionID,
		record.StepOrder,
		record.StepName,
		record.Status,
		record.StartedAt,
		record.CompletedAt,
		record.DurationMs,
		inputSnapshot,
		outputSnapshot,
		record.ErrorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to save step record %s/%d: %w", record.ExecutionID, record.StepOrder, err)
	}

	return nil
}

func (r *StepRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.StepRecord, error) {
	query := `
		SELECT execution_id, step_order, step_name, status, started_at,
		       completed_at, duration_ms, input_snapshot, output_snapshot, error_detail
		FROM workflow_steps
		WHERE execution_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records for %s: %w", executionID, err)
	}
	defer rows.Close()

	var records []*models.StepRecord

	for rows.Next() {
		record := &models.StepRecord{}

		var inputSnapshot, outputSnapshot []byte

		err = rows.Scan(
			&record.ExecutionID,
			&record.StepOrder,
			&record.StepName,
			&record.Status,
			&record.StartedAt,
			&record.CompletedAt,
			&record.DurationMs,
			&inputSnapshot,
			&outputSnapshot,
			&record.ErrorDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}

		if len(inputSnapshot) > 0 {
			if err := json.Unmarshal(inputSnapshot, &record.InputSnapshot); err != nil {
				return nil, fmt.Errorf("failed to decode input snapshot: %w", err)
			}
		}

		if len(outputSnapshot) > 0 {
			if err := json.Unmarshal(outputSnapshot, &record.OutputSnapshot); err != nil {
				return nil, fmt.Errorf("failed to decode output snapshot: %w", err)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate step records: %w", err)
	}

	return records, nil
}

func marshalNullable(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}
