package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/coverpath/coverpath/pkg/broadcast"
	"github.com/coverpath/coverpath/pkg/config"
	"github.com/coverpath/coverpath/pkg/models"
	"github.com/coverpath/coverpath/pkg/persistence/memory"
	"github.com/coverpath/coverpath/pkg/sequencer"
	"github.com/coverpath/coverpath/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence, *sequencer.Sequencer) {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.NewMemoryStore()
	require.NoError(t, config.SeedDemo(ctx, cfg))

	// Keep test runs fast.
	require.NoError(t, cfg.SetSetting(ctx, config.KeyDefaultProcessingTimeMs, config.GlobalScope, float64(1)))
	require.NoError(t, cfg.SetSetting(ctx, config.KeyDefaultStepDelayMs, config.GlobalScope, float64(1)))

	persist := memory.NewPersistence()
	broadcaster := broadcast.NewBroadcaster(logger)
	seq := sequencer.NewSequencer(cfg, sequencer.NewContextStore(), persist, broadcaster, logger)
	t.Cleanup(seq.Close)

	handlers := web.NewAPIHandlers(seq, persist)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Post("/demo/start", handlers.StartDemoWorkflow)
	w.Get("/executions", handlers.ListExecutions)
	w.Get("/executions/:id", handlers.GetExecution)
	w.Get("/executions/:id/steps", handlers.ListExecutionSteps)
	w.Delete("/executions/:id", handlers.CancelExecution)
	app.Get("/health", handlers.HealthCheck)

	return app, persist, seq
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (*http.Response, []byte) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func waitForCompletion(t *testing.T, persist *memory.Persistence, executionID string) {
	t.Helper()

	require.Eventually(t, func() bool {
		record, err := persist.Executions().GetByID(context.Background(), executionID)
		if err != nil {
			return false
		}

		return record.Status.IsTerminal()
	}, 10*time.Second, 10*time.Millisecond)
}

func TestStartDemoWorkflowAccepted(t *testing.T) {
	app, persist, _ := setupTestApp(t)

	resp, body := postJSON(t, app, "/workflows/demo/start", map[string]any{
		"trigger_id":   "msg-1",
		"user_id":      "alex",
		"scenario_key": "demo-scenario",
	})

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var result map[string]any

	require.NoError(t, json.Unmarshal(body, &result))
	executionID, _ := result["execution_id"].(string)
	assert.Contains(t, executionID, "exec-")

	waitForCompletion(t, persist, executionID)
}

func TestStartDemoWorkflowUnknownScenario(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := postJSON(t, app, "/workflows/demo/start", map[string]any{
		"trigger_id":   "msg-1",
		"scenario_key": "no-such-scenario",
	})

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartDemoWorkflowMissingTriggerID(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := postJSON(t, app, "/workflows/demo/start", map[string]any{
		"scenario_key": "demo-scenario",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetExecutionServesPersistedRecordAfterCompletion(t *testing.T) {
	app, persist, _ := setupTestApp(t)

	_, body := postJSON(t, app, "/workflows/demo/start", map[string]any{
		"trigger_id":   "msg-1",
		"scenario_key": "demo-scenario",
	})

	var started map[string]any

	require.NoError(t, json.Unmarshal(body, &started))
	executionID := started["execution_id"].(string)

	waitForCompletion(t, persist, executionID)

	resp, body := getJSON(t, app, "/workflows/executions/"+executionID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var record models.ExecutionRecord

	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, executionID, record.ExecutionID)
}

func TestGetExecutionNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, _ := getJSON(t, app, "/workflows/executions/exec-missing")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListExecutionSteps(t *testing.T) {
	app, persist, _ := setupTestApp(t)

	_, body := postJSON(t, app, "/workflows/demo/start", map[string]any{
		"trigger_id":   "msg-1",
		"scenario_key": "demo-scenario",
	})

	var started map[string]any

	require.NoError(t, json.Unmarshal(body, &started))
	executionID := started["execution_id"].(string)

	waitForCompletion(t, persist, executionID)

	resp, body := getJSON(t, app, "/workflows/executions/"+executionID+"/steps")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		ExecutionID string              `json:"execution_id"`
		Steps       []models.StepRecord `json:"steps"`
	}

	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Steps, 3)
	assert.Equal(t, 1, result.Steps[0].StepOrder)
	assert.Equal(t, models.StepStatusCompleted, result.Steps[0].Status)
}

func TestListExecutions(t *testing.T) {
	app, persist, _ := setupTestApp(t)

	_, body := postJSON(t, app, "/workflows/demo/start", map[string]any{
		"trigger_id":   "msg-1",
		"scenario_key": "demo-scenario",
	})

	var started map[string]any

	require.NoError(t, json.Unmarshal(body, &started))
	waitForCompletion(t, persist, started["execution_id"].(string))

	resp, body := getJSON(t, app, "/workflows/executions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		TotalCount int `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 1, result.TotalCount)
}

func TestCancelExecutionNotRunning(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodDelete, "/workflows/executions/exec-missing", nil)

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := getJSON(t, app, "/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any

	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "healthy", result["status"])
}
