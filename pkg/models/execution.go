package models

import "time"

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusInitializing ExecutionStatus = "initializing"
	ExecutionStatusRunning      ExecutionStatus = "running"
	ExecutionStatusCompleted    ExecutionStatus = "completed"
	ExecutionStatusFailed       ExecutionStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ValidExecutionTransition reports whether status transitions are monotonic:
// initializing -> running -> {completed|failed}, no reverse moves.
func ValidExecutionTransition(from, to ExecutionStatus) bool {
	switch from {
	case ExecutionStatusInitializing:
		return to == ExecutionStatusRunning || to == ExecutionStatusFailed
	case ExecutionStatusRunning:
		return to == ExecutionStatusCompleted || to == ExecutionStatusFailed
	default:
		return false
	}
}

// StepStatus represents the lifecycle state of one persisted step.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepResult captures the outcome of one completed step inside the
// in-memory execution context.
type StepResult struct {
	StepName         string         `json:"step_name"`
	Output           map[string]any `json:"output"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
	DurationMs       int64          `json:"duration_ms"`
	CompletedAt      time.Time      `json:"completed_at"`
}

// ExecutionContext is the mutable orchestration state for one live
// execution. It is owned by the sequencer loop for that execution and
// mutated exactly once per completed step. Invariant at step boundaries:
// 0 <= CurrentStepIndex <= TotalSteps and
// len(AccumulatedResults) == CurrentStepIndex.
type ExecutionContext struct {
	ExecutionID        string                `json:"execution_id"`
	TriggerID          string                `json:"trigger_id"`
	UserID             string                `json:"user_id"`
	ScenarioKey        string                `json:"scenario_key"`
	Persona            string                `json:"persona,omitempty"`
	CurrentStepIndex   int                   `json:"current_step_index"`
	TotalSteps         int                   `json:"total_steps"`
	AccumulatedResults map[string]StepResult `json:"accumulated_results"`
	Steps              []StepDefinition      `json:"steps,omitempty"`
	StartedAt          time.Time             `json:"started_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out to polling consumers.
func (c *ExecutionContext) Clone() *ExecutionContext {
	cp := *c

	cp.AccumulatedResults = make(map[string]StepResult, len(c.AccumulatedResults))
	for name, result := range c.AccumulatedResults {
		rc := result
		rc.Output = cloneAnyMap(result.Output)
		rc.SuggestedActions = append([]string(nil), result.SuggestedActions...)
		cp.AccumulatedResults[name] = rc
	}

	cp.Steps = append([]StepDefinition(nil), c.Steps...)

	return &cp
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// ExecutionRecord is the persisted audit row for one workflow run.
type ExecutionRecord struct {
	ExecutionID   string          `json:"execution_id"`
	TriggerID     string          `json:"trigger_id"`
	UserID        string          `json:"user_id"`
	ScenarioKey   string          `json:"scenario_key"`
	Persona       string          `json:"persona,omitempty"`
	Status        ExecutionStatus `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	StepCount     int             `json:"step_count"`
	ResultSummary string          `json:"result_summary,omitempty"`
	ErrorDetail   string          `json:"error_detail,omitempty"`
}

// StepRecord is the persisted audit row for one step, keyed by
// (ExecutionID, StepOrder). It is written once in running state and
// transitioned to completed or failed exactly once, never revisited.
type StepRecord struct {
	ExecutionID    string         `json:"execution_id"`
	StepOrder      int            `json:"step_order"`
	StepName       string         `json:"step_name"`
	Status         StepStatus     `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	DurationMs     int64          `json:"duration_ms"`
	InputSnapshot  map[string]any `json:"input_snapshot,omitempty"`
	OutputSnapshot any            `json:"output_snapshot,omitempty"`
	ErrorDetail    string         `json:"error_detail,omitempty"`
}
