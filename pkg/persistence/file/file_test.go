package file

import (
	"context"
	"testing"
	"time"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	completed := time.Now().UTC().Truncate(time.Millisecond)

	record := &models.ExecutionRecord{
		ExecutionID:   "exec-1",
		TriggerID:     "msg-1",
		ScenarioKey:   "underwriting-demo",
		Status:        models.ExecutionStatusCompleted,
		StartedAt:     completed.Add(-time.Minute),
		CompletedAt:   &completed,
		StepCount:     8,
		ResultSummary: "all steps completed",
	}

	require.NoError(t, p.Executions().Save(ctx, record))

	got, err := p.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, record.Status, got.Status)
	assert.Equal(t, record.ResultSummary, got.ResultSummary)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
}

func TestExecutionRejectsBackwardTransition(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	record := &models.ExecutionRecord{
		ExecutionID: "exec-1",
		Status:      models.ExecutionStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	require.NoError(t, p.Executions().Save(ctx, record))

	record.Status = models.ExecutionStatusFailed
	require.NoError(t, p.Executions().Save(ctx, record))

	record.Status = models.ExecutionStatusRunning
	err := p.Executions().Save(ctx, record)
	assert.ErrorIs(t, err, persistence.ErrInvalidStatusTransition)

	got, err := p.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, got.Status)
}

func TestExecutionGetMissing(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.Executions().GetByID(context.Background(), "exec-missing")

	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionIDValidation(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		err := p.Executions().Save(ctx, &models.ExecutionRecord{ExecutionID: id})
		assert.Error(t, err, "id %q should be rejected", id)
	}
}

func TestListSkipsUnrelatedFiles(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.Executions().Save(ctx, &models.ExecutionRecord{ExecutionID: "exec-1", StartedAt: time.Now().UTC()}))
	require.NoError(t, p.Executions().Save(ctx, &models.ExecutionRecord{ExecutionID: "exec-2", StartedAt: time.Now().UTC().Add(time.Second)}))

	records, err := p.Executions().List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "exec-1", records[0].ExecutionID)
}

func TestStepRecordsOrderedByStepOrder(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())

	for _, order := range []int{3, 1, 2} {
		require.NoError(t, p.Steps().Save(ctx, &models.StepRecord{
			ExecutionID: "exec-1",
			StepOrder:   order,
			Status:      models.StepStatusCompleted,
			OutputSnapshot: map[string]any{
				"order": order,
			},
		}))
	}

	steps, err := p.Steps().ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)

	for i, step := range steps {
		assert.Equal(t, i+1, step.StepOrder)
	}
}

func TestStepListUnknownExecution(t *testing.T) {
	p := NewPersistence(t.TempDir())

	steps, err := p.Steps().ListByExecution(context.Background(), "exec-missing")

	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestHealthCheckCreatesRoot(t *testing.T) {
	p := NewPersistence(t.TempDir() + "/nested/store")

	assert.NoError(t, p.HealthCheck(context.Background()))
}
