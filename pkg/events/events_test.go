package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(StepStartedEvent, "exec-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, StepStartedEvent, event.GetType())
	assert.Equal(t, "exec-1", event.GetExecutionID())
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)
}

func TestNewExecutionStartedCarriesContext(t *testing.T) {
	execCtx := &models.ExecutionContext{
		ExecutionID: "exec-1",
		TriggerID:   "msg-1",
		UserID:      "alex",
		ScenarioKey: "underwriting-demo",
		Persona:     "underwriter",
		TotalSteps:  8,
	}

	event := NewExecutionStarted("exec-1", execCtx)

	assert.Equal(t, ExecutionStartedEvent, event.GetType())
	assert.Equal(t, "msg-1", event.TriggerID)
	assert.Equal(t, "underwriter", event.Persona)
	assert.Equal(t, 8, event.TotalSteps)
}

func TestStepCompletedSerializesWireType(t *testing.T) {
	step := models.StepDefinition{Key: "assess_risk", Order: 4, Name: "Assess risk"}
	result := models.StepResult{
		StepName:         "Assess risk",
		Output:           map[string]any{"risk_score": float64(640)},
		SuggestedActions: []string{"requires_referral"},
		DurationMs:       1800,
	}

	event := NewStepCompleted("exec-1", 4, step, result)

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "step_completed", decoded["type"])
	assert.Equal(t, "exec-1", decoded["execution_id"])
	assert.Equal(t, float64(4), decoded["step_order"])
}
