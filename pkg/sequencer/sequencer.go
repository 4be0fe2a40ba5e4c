// Package sequencer drives demo workflow executions through their
// configured steps, persisting audit records and broadcasting lifecycle
// events for every transition.
package sequencer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/coverpath/coverpath/pkg/broadcast"
	"github.com/coverpath/coverpath/pkg/config"
	"github.com/coverpath/coverpath/pkg/events"
	"github.com/coverpath/coverpath/pkg/models"
	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/coverpath/coverpath/pkg/rules"
	"github.com/coverpath/coverpath/pkg/telemetry"
	"github.com/coverpath/coverpath/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Built-in fallback bounds for simulated processing time when no
// configured value resolves.
const (
	fallbackDelayFloorMs = 1000
	fallbackDelayCeilMs  = 2000
)

// Sequencer runs one goroutine per execution, advancing strictly one
// step at a time within an execution. Different executions run
// concurrently and independently; there is no cross-execution lock.
type Sequencer struct {
	config      config.Service
	persistence persistence.Persistence
	store       *ContextStore
	broadcaster *broadcast.Broadcaster
	worker      StepWorker
	tracer      trace.Tracer
	validate    *validator.Validate
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSequencer(
	cfg config.Service,
	store *ContextStore,
	persist persistence.Persistence,
	broadcaster *broadcast.Broadcaster,
	logger *slog.Logger,
) *Sequencer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Sequencer{
		config:      cfg,
		persistence: persist,
		store:       store,
		broadcaster: broadcaster,
		worker:      SimulatedWork,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "sequencer"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// WithWorker replaces the default simulated-delay step worker.
func (s *Sequencer) WithWorker(worker StepWorker) *Sequencer {
	s.worker = worker

	return s
}

// WithTracer enables per-execution and per-step spans.
func (s *Sequencer) WithTracer(tracer trace.Tracer) *Sequencer {
	s.tracer = tracer

	return s
}

// Close stops scheduling of new steps and waits for running execution
// loops to observe cancellation.
func (s *Sequencer) Close() {
	s.cancel()
	s.wg.Wait()
}

// StartWorkflow validates the full configuration for the scenario,
// durably writes the execution record, registers the live context, and
// begins asynchronous step execution. It returns the execution id as
// soon as the first record is written; progress is observed through the
// broadcaster, never through this call. Configuration and scenario
// errors surface here synchronously so a partially configured workflow
// never starts.
func (s *Sequencer) StartWorkflow(ctx context.Context, triggerID, userID, scenarioKey string) (string, error) {
	if triggerID == "" {
		return "", errors.New("trigger id is required")
	}

	persona := s.defaultPersona(ctx)

	scenario, err := s.resolveScenario(ctx, scenarioKey, persona)
	if err != nil {
		return "", err
	}

	if scenario.Persona != "" {
		persona = scenario.Persona
	}

	err = s.validate.Struct(scenario)
	if err != nil {
		return "", fmt.Errorf("scenario %s failed validation: %w", scenarioKey, err)
	}

	err = s.ValidateRequiredConfig(ctx, scenario, persona)
	if err != nil {
		return "", err
	}

	executionID := "exec-" + uuid.New().String()
	now := time.Now().UTC()

	record := &models.ExecutionRecord{
		ExecutionID: executionID,
		TriggerID:   triggerID,
		UserID:      userID,
		ScenarioKey: scenarioKey,
		Persona:     persona,
		Status:      models.ExecutionStatusInitializing,
		StartedAt:   now,
		StepCount:   len(scenario.Steps),
	}

	err = s.persistence.Executions().Save(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to persist execution record: %w", err)
	}

	record.Status = models.ExecutionStatusRunning

	err = s.persistence.Executions().Save(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to persist execution record: %w", err)
	}

	execCtx := &models.ExecutionContext{
		ExecutionID:        executionID,
		TriggerID:          triggerID,
		UserID:             userID,
		ScenarioKey:        scenarioKey,
		Persona:            persona,
		CurrentStepIndex:   0,
		TotalSteps:         len(scenario.Steps),
		AccumulatedResults: make(map[string]models.StepResult),
		Steps:              scenario.Steps,
		StartedAt:          now,
		UpdatedAt:          now,
	}

	s.store.Put(execCtx)

	s.logger.InfoContext(ctx, "Starting workflow execution",
		"execution_id", executionID,
		"scenario", scenarioKey,
		"persona", persona,
		"steps", len(scenario.Steps),
	)

	s.broadcaster.Publish(executionID, events.NewExecutionStarted(executionID, execCtx))

	s.wg.Add(1)

	go s.run(executionID, persona)

	return executionID, nil
}

// GetWorkflowStatus returns a snapshot of the in-memory progress for
// polling consumers, or nil once the execution reached a terminal
// state and left the registry.
func (s *Sequencer) GetWorkflowStatus(executionID string) *models.ExecutionContext {
	return s.store.Snapshot(executionID)
}

// CancelWorkflow removes the execution context from the live registry,
// preventing scheduling of subsequent steps. Work already in flight for
// the current step is not preempted.
func (s *Sequencer) CancelWorkflow(executionID string) bool {
	return s.store.Delete(executionID)
}

// AbortStale fails every live execution whose last progress is older
// than the threshold. Used by the sweeper to reap runs abandoned by a
// crashed loop.
func (s *Sequencer) AbortStale(olderThan time.Duration) int {
	aborted := 0

	for _, executionID := range s.store.ActiveIDs() {
		snapshot := s.store.Snapshot(executionID)
		if snapshot == nil {
			continue
		}

		if time.Since(snapshot.UpdatedAt) <= olderThan {
			continue
		}

		s.failExecution(s.ctx, executionID, snapshot.CurrentStepIndex+1,
			fmt.Errorf("execution stalled: no progress since %s", snapshot.UpdatedAt.Format(time.RFC3339)))

		aborted++
	}

	return aborted
}

// run is the per-execution loop. It consults the registry before every
// step so a removed context stops scheduling, and always emits the
// execution's terminal event last.
func (s *Sequencer) run(executionID, persona string) {
	defer s.wg.Done()

	ctx := s.ctx
	logger := s.logger.With("execution_id", executionID)
	evaluator := s.evaluatorFor(ctx, persona)

	var span trace.Span

	if s.tracer != nil {
		execCtx, ok := s.store.Get(executionID)
		if ok {
			ctx, span = telemetry.StartSpan(ctx, s.tracer, "workflow.execution",
				attribute.String(telemetry.ExecutionIDKey, executionID),
				attribute.String(telemetry.ScenarioKeyKey, execCtx.ScenarioKey),
				attribute.String(telemetry.PersonaKey, persona),
			)
			defer span.End()
		}
	}

	for {
		execCtx, ok := s.store.Get(executionID)
		if !ok {
			logger.Info("Execution context removed, stopping scheduling")

			return
		}

		if execCtx.CurrentStepIndex >= execCtx.TotalSteps {
			s.completeExecution(ctx, execCtx, "all steps completed")

			return
		}

		decision, stepOrder, err := s.advanceStep(ctx, execCtx, persona, evaluator)
		if err != nil {
			if span != nil {
				telemetry.SetError(span, err)
			}

			s.failExecution(ctx, executionID, stepOrder, err)

			return
		}

		if !decision.ShouldContinue {
			reason := "stopped by rule"
			if len(decision.SuggestedActions) > 0 {
				reason = "stopped by rule: " + decision.SuggestedActions[0]
			}

			s.completeExecution(ctx, execCtx, reason)

			return
		}

		if execCtx.CurrentStepIndex >= execCtx.TotalSteps {
			continue
		}

		stepDelay := s.resolveStepDelay(ctx, execCtx, persona)

		select {
		case <-ctx.Done():
			logger.Info("Sequencer shutting down mid-execution")

			return
		case <-time.After(stepDelay):
		}
	}
}

// advanceStep executes exactly one step: record created running, step
// started event, simulated work, template rendering, rule evaluation,
// record completed with the measured wall-clock duration, context
// advanced, step completed event.
func (s *Sequencer) advanceStep(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	persona string,
	evaluator *rules.Evaluator,
) (models.Decision, int, error) {
	step := execCtx.Steps[execCtx.CurrentStepIndex]
	stepOrder := execCtx.CurrentStepIndex + 1
	executionID := execCtx.ExecutionID
	startedAt := time.Now().UTC()

	if s.tracer != nil {
		var span trace.Span

		ctx, span = telemetry.StartSpan(ctx, s.tracer, "workflow.step",
			attribute.String(telemetry.ExecutionIDKey, executionID),
			attribute.Int(telemetry.StepOrderKey, stepOrder),
			attribute.String(telemetry.StepNameKey, step.Name),
		)
		defer span.End()
	}

	stepRecord := &models.StepRecord{
		ExecutionID:   executionID,
		StepOrder:     stepOrder,
		StepName:      step.Name,
		Status:        models.StepStatusRunning,
		StartedAt:     startedAt,
		InputSnapshot: s.inputSnapshot(execCtx, step),
	}

	err := s.persistence.Steps().Save(ctx, stepRecord)
	if err != nil {
		return models.Decision{}, stepOrder, fmt.Errorf("failed to persist step record: %w", err)
	}

	s.broadcaster.Publish(executionID, events.NewStepStarted(executionID, stepOrder, step))

	processingDelay := s.resolveProcessingTime(ctx, execCtx, step, persona)

	err = s.worker(ctx, step, processingDelay)
	if err != nil {
		s.failStep(ctx, stepRecord, err)

		return models.Decision{}, stepOrder, &StepExecutionError{ExecutionID: executionID, StepOrder: stepOrder, Err: err}
	}

	templateValue, err := s.config.GetSetting(ctx, config.StepTemplateKey(step.Key), persona)
	if err != nil {
		s.failStep(ctx, stepRecord, err)

		return models.Decision{}, stepOrder, &StepExecutionError{ExecutionID: executionID, StepOrder: stepOrder, Err: err}
	}

	rendered := template.Render(templateValue, s.templateContext(execCtx, step))

	output, ok := rendered.(map[string]any)
	if !ok {
		output = map[string]any{"value": rendered}
	}

	decision := evaluator.Evaluate(s.ruleFor(ctx, step, persona), output, s.accumulatedOutputs(execCtx))

	completedAt := time.Now().UTC()

	stepRecord.Status = models.StepStatusCompleted
	stepRecord.CompletedAt = &completedAt
	stepRecord.DurationMs = completedAt.Sub(startedAt).Milliseconds()
	stepRecord.OutputSnapshot = output

	err = s.persistence.Steps().Save(ctx, stepRecord)
	if err != nil {
		return models.Decision{}, stepOrder, fmt.Errorf("failed to persist step record: %w", err)
	}

	result := models.StepResult{
		StepName:         step.Name,
		Output:           output,
		SuggestedActions: decision.SuggestedActions,
		DurationMs:       stepRecord.DurationMs,
		CompletedAt:      completedAt,
	}

	s.store.Advance(executionID, step.Key, result)

	s.broadcaster.Publish(executionID, events.NewStepCompleted(executionID, stepOrder, step, result))

	return decision, stepOrder, nil
}

func (s *Sequencer) failStep(ctx context.Context, stepRecord *models.StepRecord, cause error) {
	now := time.Now().UTC()

	stepRecord.Status = models.StepStatusFailed
	stepRecord.CompletedAt = &now
	stepRecord.DurationMs = now.Sub(stepRecord.StartedAt).Milliseconds()
	stepRecord.ErrorDetail = cause.Error()

	err := s.persistence.Steps().Save(ctx, stepRecord)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist failed step record",
			"execution_id", stepRecord.ExecutionID, "step_order", stepRecord.StepOrder, "error", err)
	}
}

// completeExecution finalizes the record, emits the terminal event, and
// removes the context from the registry. A rule-directed stop is a
// normal completion, not a failure.
func (s *Sequencer) completeExecution(ctx context.Context, execCtx *models.ExecutionContext, reason string) {
	executionID := execCtx.ExecutionID
	now := time.Now().UTC()

	record, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load execution record for completion", "execution_id", executionID, "error", err)

		record = &models.ExecutionRecord{ExecutionID: executionID, StartedAt: execCtx.StartedAt, StepCount: execCtx.TotalSteps}
	}

	record.Status = models.ExecutionStatusCompleted
	record.CompletedAt = &now
	record.ResultSummary = reason

	err = s.persistence.Executions().Save(ctx, record)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist completed execution record", "execution_id", executionID, "error", err)
	}

	snapshot := execCtx.Clone()

	event := &events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, executionID),
		StepsExecuted: snapshot.CurrentStepIndex,
		StopReason:    reason,
		DurationMs:    now.Sub(execCtx.StartedAt).Milliseconds(),
		Results:       snapshot.AccumulatedResults,
	}

	s.broadcaster.Publish(executionID, event)
	s.store.Delete(executionID)

	s.logger.InfoContext(ctx, "Execution completed",
		"execution_id", executionID, "steps_executed", snapshot.CurrentStepIndex, "reason", reason)
}

func (s *Sequencer) failExecution(ctx context.Context, executionID string, stepOrder int, cause error) {
	now := time.Now().UTC()

	record, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load execution record for failure", "execution_id", executionID, "error", err)

		record = &models.ExecutionRecord{ExecutionID: executionID, StartedAt: now}
	}

	record.Status = models.ExecutionStatusFailed
	record.CompletedAt = &now
	record.ErrorDetail = cause.Error()

	err = s.persistence.Executions().Save(ctx, record)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist failed execution record", "execution_id", executionID, "error", err)
	}

	event := &events.ExecutionFailed{
		BaseEvent:  events.NewBaseEvent(events.ExecutionFailedEvent, executionID),
		StepOrder:  stepOrder,
		Error:      cause.Error(),
		DurationMs: now.Sub(record.StartedAt).Milliseconds(),
	}

	s.broadcaster.Publish(executionID, event)
	s.store.Delete(executionID)

	s.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", executionID, "step_order", stepOrder, "error", cause)
}

// resolveScenario loads and decodes the scenario definition, sorting
// steps by ascending order. Step order is never changed after this
// point.
func (s *Sequencer) resolveScenario(ctx context.Context, scenarioKey, persona string) (*models.Scenario, error) {
	raw, err := s.config.GetSetting(ctx, config.ScenarioKey(scenarioKey), persona)
	if err != nil {
		if config.IsSettingNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, scenarioKey)
		}

		return nil, fmt.Errorf("failed to read scenario %s: %w", scenarioKey, err)
	}

	scenario, err := decodeScenario(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scenario %s: %w", scenarioKey, err)
	}

	sort.SliceStable(scenario.Steps, func(i, j int) bool {
		return scenario.Steps[i].Order < scenario.Steps[j].Order
	})

	return scenario, nil
}

func decodeScenario(raw any) (*models.Scenario, error) {
	if scenario, ok := raw.(*models.Scenario); ok {
		clone := *scenario
		clone.Steps = append([]models.StepDefinition(nil), scenario.Steps...)

		return &clone, nil
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var scenario models.Scenario

	err = json.Unmarshal(payload, &scenario)
	if err != nil {
		return nil, err
	}

	return &scenario, nil
}

func (s *Sequencer) defaultPersona(ctx context.Context) string {
	raw, err := s.config.GetSetting(ctx, config.KeyDefaultPersona, config.GlobalScope)
	if err != nil {
		return ""
	}

	persona, _ := raw.(string)

	return persona
}

// evaluatorFor builds the rule evaluator with the configured stop
// actions, falling back to the built-in set.
func (s *Sequencer) evaluatorFor(ctx context.Context, persona string) *rules.Evaluator {
	var stopActions []string

	raw, err := s.config.GetSetting(ctx, config.KeyStopActions, persona)
	if err == nil {
		if list, ok := raw.([]any); ok {
			for _, item := range list {
				if action, ok := item.(string); ok {
					stopActions = append(stopActions, action)
				}
			}
		}
	}

	return rules.NewEvaluator(s.logger, stopActions)
}

// ruleFor loads the step's rule. Absence is not an error; malformed
// rules are logged and treated as absent.
func (s *Sequencer) ruleFor(ctx context.Context, step models.StepDefinition, persona string) *models.Rule {
	raw, err := s.config.GetSetting(ctx, config.StepRulesKey(step.Key), persona)
	if err != nil {
		return nil
	}

	rule, err := rules.ParseRule(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "Ignoring malformed business rule", "step", step.Key, "error", err)

		return nil
	}

	if rule != nil && rule.ScopeKey == "" {
		rule.ScopeKey = config.StepRulesKey(step.Key)
	}

	return rule
}

// resolveProcessingTime resolves the simulated processing delay through
// the three-tier fallback: step-specific, scenario default, workflow
// default, then a bounded random built-in. The value drives the
// simulated work only; recorded durations are wall-clock measured.
func (s *Sequencer) resolveProcessingTime(ctx context.Context, execCtx *models.ExecutionContext, step models.StepDefinition, persona string) time.Duration {
	return s.resolveDurationMs(ctx, persona,
		config.StepProcessingTimeKey(step.Key),
		config.ScenarioProcessingTimeKey(execCtx.ScenarioKey),
		config.KeyDefaultProcessingTimeMs,
	)
}

// resolveStepDelay resolves the inter-step pause with the same fallback
// pattern as processing time.
func (s *Sequencer) resolveStepDelay(ctx context.Context, execCtx *models.ExecutionContext, persona string) time.Duration {
	stepKey := ""
	if execCtx.CurrentStepIndex > 0 && execCtx.CurrentStepIndex <= len(execCtx.Steps) {
		stepKey = execCtx.Steps[execCtx.CurrentStepIndex-1].Key
	}

	return s.resolveDurationMs(ctx, persona,
		config.StepDelayKey(stepKey),
		config.ScenarioStepDelayKey(execCtx.ScenarioKey),
		config.KeyDefaultStepDelayMs,
	)
}

func (s *Sequencer) resolveDurationMs(ctx context.Context, persona string, keys ...string) time.Duration {
	for _, key := range keys {
		raw, err := s.config.GetSetting(ctx, key, persona)
		if err != nil {
			continue
		}

		if ms, ok := toMilliseconds(raw); ok {
			return ms
		}
	}

	return time.Duration(fallbackDelayFloorMs+rand.IntN(fallbackDelayCeilMs-fallbackDelayFloorMs+1)) * time.Millisecond
}

func toMilliseconds(raw any) (time.Duration, bool) {
	switch v := raw.(type) {
	case int:
		return time.Duration(v) * time.Millisecond, true
	case int64:
		return time.Duration(v) * time.Millisecond, true
	case float64:
		return time.Duration(v) * time.Millisecond, true
	default:
		return 0, false
	}
}

// templateContext flattens the live execution state into the flat
// placeholder map the renderer consumes. Prior step outputs are exposed
// as "<step>.<field>" for scalar leaves.
func (s *Sequencer) templateContext(execCtx *models.ExecutionContext, step models.StepDefinition) map[string]string {
	context := map[string]string{
		"execution_id": execCtx.ExecutionID,
		"trigger_id":   execCtx.TriggerID,
		"user_id":      execCtx.UserID,
		"scenario":     execCtx.ScenarioKey,
		"persona":      execCtx.Persona,
		"step":         step.Key,
		"step_name":    step.Name,
		"actor":        step.ResponsibleActor,
	}

	for stepKey, result := range execCtx.AccumulatedResults {
		for field, value := range result.Output {
			switch value.(type) {
			case map[string]any, []any:
				// Only scalar leaves are addressable from templates.
			default:
				context[stepKey+"."+field] = fmt.Sprint(value)
			}
		}
	}

	return context
}

func (s *Sequencer) accumulatedOutputs(execCtx *models.ExecutionContext) map[string]any {
	accumulated := make(map[string]any, len(execCtx.AccumulatedResults))
	for stepKey, result := range execCtx.AccumulatedResults {
		accumulated[stepKey] = result.Output
	}

	return accumulated
}

func (s *Sequencer) inputSnapshot(execCtx *models.ExecutionContext, step models.StepDefinition) map[string]any {
	snapshot := map[string]any{
		"trigger_id":      execCtx.TriggerID,
		"scenario":        execCtx.ScenarioKey,
		"declared_inputs": step.DeclaredInputs,
	}

	if execCtx.CurrentStepIndex > 0 {
		previous := execCtx.Steps[execCtx.CurrentStepIndex-1]
		if result, ok := execCtx.AccumulatedResults[previous.Key]; ok {
			snapshot["previous_step"] = previous.Key
			snapshot["previous_output"] = result.Output
		}
	}

	return snapshot
}
