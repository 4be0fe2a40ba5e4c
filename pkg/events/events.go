// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/coverpath/coverpath/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Watermill/Kafka topic for relayed execution events.
const Topic = "coverpath.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution_started"
	StepStartedEvent        EventType = "step_started"
	StepCompletedEvent      EventType = "step_completed"
	ExecutionCompletedEvent EventType = "execution_completed"
	ExecutionFailedEvent    EventType = "execution_failed"
)

// Event is implemented by every lifecycle event.
type Event interface {
	GetType() EventType
	GetExecutionID() string
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	Timestamp   time.Time `json:"timestamp"`
}

func (b BaseEvent) GetType() EventType     { return b.Type }
func (b BaseEvent) GetExecutionID() string { return b.ExecutionID }

func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
	}
}

type ExecutionStarted struct {
	BaseEvent

	ScenarioKey string `json:"scenario_key"`
	TriggerID   string `json:"trigger_id"`
	UserID      string `json:"user_id"`
	Persona     string `json:"persona,omitempty"`
	TotalSteps  int    `json:"total_steps"`
}

type StepStarted struct {
	BaseEvent

	StepOrder        int    `json:"step_order"`
	StepName         string `json:"step_name"`
	ResponsibleActor string `json:"responsible_actor,omitempty"`
	Description      string `json:"description,omitempty"`
}

type StepCompleted struct {
	BaseEvent

	StepOrder        int            `json:"step_order"`
	StepName         string         `json:"step_name"`
	DurationMs       int64          `json:"duration_ms"`
	Output           map[string]any `json:"output,omitempty"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
}

type ExecutionCompleted struct {
	BaseEvent

	StepsExecuted int                          `json:"steps_executed"`
	StopReason    string                       `json:"stop_reason,omitempty"`
	DurationMs    int64                        `json:"duration_ms"`
	Results       map[string]models.StepResult `json:"results,omitempty"`
}

type ExecutionFailed struct {
	BaseEvent

	StepOrder  int    `json:"step_order,omitempty"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func NewExecutionStarted(executionID string, execCtx *models.ExecutionContext) *ExecutionStarted {
	return &ExecutionStarted{
		BaseEvent:   NewBaseEvent(ExecutionStartedEvent, executionID),
		ScenarioKey: execCtx.ScenarioKey,
		TriggerID:   execCtx.TriggerID,
		UserID:      execCtx.UserID,
		Persona:     execCtx.Persona,
		TotalSteps:  execCtx.TotalSteps,
	}
}

func NewStepStarted(executionID string, order int, step models.StepDefinition) *StepStarted {
	return &StepStarted{
		BaseEvent:        NewBaseEvent(StepStartedEvent, executionID),
		StepOrder:        order,
		StepName:         step.Name,
		ResponsibleActor: step.ResponsibleActor,
		Description:      step.Description,
	}
}

func NewStepCompleted(executionID string, order int, step models.StepDefinition, result models.StepResult) *StepCompleted {
	return &StepCompleted{
		BaseEvent:        NewBaseEvent(StepCompletedEvent, executionID),
		StepOrder:        order,
		StepName:         step.Name,
		DurationMs:       result.DurationMs,
		Output:           result.Output,
		SuggestedActions: result.SuggestedActions,
	}
}
