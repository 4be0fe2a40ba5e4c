// Package web provides the REST endpoints for starting demo workflow
// executions and inspecting their audit records.
package web

import (
	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/coverpath/coverpath/pkg/sequencer"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	sequencer   *sequencer.Sequencer
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(seq *sequencer.Sequencer, persist persistence.Persistence) *APIHandlers {
	return &APIHandlers{
		sequencer:   seq,
		persistence: persist,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

type startWorkflowRequest struct {
	TriggerID   string `json:"trigger_id"   validate:"required"`
	UserID      string `json:"user_id"`
	ScenarioKey string `json:"scenario_key" validate:"required"`
}

// StartDemoWorkflow kicks off an execution and returns its id without
// waiting for any step to run. Progress is observed over the WebSocket
// stream or by polling the status endpoint.
func (h *APIHandlers) StartDemoWorkflow(c fiber.Ctx) error {
	var req startWorkflowRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, "Invalid request: "+err.Error())
	}

	executionID, err := h.sequencer.StartWorkflow(c.Context(), req.TriggerID, req.UserID, req.ScenarioKey)
	if err != nil {
		return handleStartError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": executionID,
		"status":       "running",
	})
}

// GetExecution prefers the live in-memory snapshot; once the execution
// reaches a terminal state it serves the persisted record instead.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	snapshot := h.sequencer.GetWorkflowStatus(id)
	if snapshot != nil {
		return c.JSON(fiber.Map{
			"execution_id":       snapshot.ExecutionID,
			"status":             "running",
			"scenario_key":       snapshot.ScenarioKey,
			"persona":            snapshot.Persona,
			"current_step_index": snapshot.CurrentStepIndex,
			"total_steps":        snapshot.TotalSteps,
			"results":            snapshot.AccumulatedResults,
			"started_at":         snapshot.StartedAt,
			"updated_at":         snapshot.UpdatedAt,
		})
	}

	record, err := h.persistence.Executions().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	records, err := h.persistence.Executions().List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  records,
		"total_count": len(records),
	})
}

// ListExecutionSteps returns the persisted per-step audit trail in
// step order.
func (h *APIHandlers) ListExecutionSteps(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	_, err := h.persistence.Executions().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	steps, err := h.persistence.Steps().ListByExecution(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"steps":        steps,
	})
}

// CancelExecution removes the live context so no further steps are
// scheduled. Already-finished executions report 404.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if !h.sequencer.CancelWorkflow(id) {
		return notFound(c, "Execution is not running")
	}

	return c.JSON(fiber.Map{
		"execution_id": id,
		"status":       "cancelling",
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
