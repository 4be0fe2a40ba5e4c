package memory

import (
	"context"
	"testing"
	"time"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRepositorySaveAndGet(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence()

	record := &models.ExecutionRecord{
		ExecutionID: "exec-1",
		TriggerID:   "msg-1",
		ScenarioKey: "underwriting-demo",
		Status:      models.ExecutionStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	require.NoError(t, p.Executions().Save(ctx, record))

	got, err := p.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, got.Status)

	// Save is an upsert keyed by execution id.
	record.Status = models.ExecutionStatusCompleted
	require.NoError(t, p.Executions().Save(ctx, record))

	got, err = p.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)
}

func TestExecutionRepositoryRejectsBackwardTransition(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence()

	record := &models.ExecutionRecord{
		ExecutionID: "exec-1",
		Status:      models.ExecutionStatusCompleted,
		StartedAt:   time.Now().UTC(),
	}

	require.NoError(t, p.Executions().Save(ctx, record))

	// Terminal records never move back to running.
	record.Status = models.ExecutionStatusRunning
	err := p.Executions().Save(ctx, record)
	assert.ErrorIs(t, err, persistence.ErrInvalidStatusTransition)

	got, err := p.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, got.Status)

	// Same-status saves update the remaining fields.
	record.Status = models.ExecutionStatusCompleted
	record.ResultSummary = "all steps completed"
	require.NoError(t, p.Executions().Save(ctx, record))
}

func TestExecutionRepositoryGetMissing(t *testing.T) {
	p := NewPersistence()

	_, err := p.Executions().GetByID(context.Background(), "exec-missing")

	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepositoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence()

	require.NoError(t, p.Executions().Save(ctx, &models.ExecutionRecord{
		ExecutionID: "exec-1",
		Status:      models.ExecutionStatusRunning,
	}))

	first, err := p.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)

	first.Status = models.ExecutionStatusFailed

	second, err := p.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, second.Status)
}

func TestExecutionRepositoryListOrderedByStart(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence()

	base := time.Now().UTC()

	require.NoError(t, p.Executions().Save(ctx, &models.ExecutionRecord{ExecutionID: "exec-b", StartedAt: base.Add(time.Minute)}))
	require.NoError(t, p.Executions().Save(ctx, &models.ExecutionRecord{ExecutionID: "exec-a", StartedAt: base}))

	records, err := p.Executions().List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "exec-a", records[0].ExecutionID)
	assert.Equal(t, "exec-b", records[1].ExecutionID)
}

func TestStepRepositoryUpsertAndOrdering(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence()

	require.NoError(t, p.Steps().Save(ctx, &models.StepRecord{ExecutionID: "exec-1", StepOrder: 2, StepName: "Assess", Status: models.StepStatusRunning}))
	require.NoError(t, p.Steps().Save(ctx, &models.StepRecord{ExecutionID: "exec-1", StepOrder: 1, StepName: "Intake", Status: models.StepStatusCompleted}))
	require.NoError(t, p.Steps().Save(ctx, &models.StepRecord{ExecutionID: "exec-2", StepOrder: 1, StepName: "Other"}))

	// Transition step 2 to completed via upsert.
	require.NoError(t, p.Steps().Save(ctx, &models.StepRecord{ExecutionID: "exec-1", StepOrder: 2, StepName: "Assess", Status: models.StepStatusCompleted}))

	steps, err := p.Steps().ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "Intake", steps[0].StepName)
	assert.Equal(t, "Assess", steps[1].StepName)
	assert.Equal(t, models.StepStatusCompleted, steps[1].Status)
}

func TestStepRepositoryListUnknownExecution(t *testing.T) {
	p := NewPersistence()

	steps, err := p.Steps().ListByExecution(context.Background(), "exec-missing")

	require.NoError(t, err)
	assert.Empty(t, steps)
}
