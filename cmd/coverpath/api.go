package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/coverpath/coverpath/pkg/sequencer"
	"github.com/coverpath/coverpath/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	sequencer   *sequencer.Sequencer
	persistence persistence.Persistence
}

func NewAPI(logger *slog.Logger, seq *sequencer.Sequencer, persist persistence.Persistence) *API {
	return &API{
		logger:      logger,
		sequencer:   seq,
		persistence: persist,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.sequencer, a.persistence)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Coverpath Orchestrator")
	})

	w := app.Group("/workflows")
	w.Post("/demo/start", handlers.StartDemoWorkflow)
	w.Get("/executions", handlers.ListExecutions)
	w.Get("/executions/:id", handlers.GetExecution)
	w.Get("/executions/:id/steps", handlers.ListExecutionSteps)
	w.Delete("/executions/:id", handlers.CancelExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := app.ShutdownWithContext(shutdownCtx)
		if err != nil {
			a.logger.Error("Failed to shutdown API server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
