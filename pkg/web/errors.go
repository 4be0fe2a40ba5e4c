package web

import (
	"errors"

	"github.com/coverpath/coverpath/pkg/persistence"
	"github.com/coverpath/coverpath/pkg/sequencer"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleStartError maps sequencer start failures onto problem
// responses: unknown scenarios and missing configuration are caller
// mistakes, everything else is internal.
func handleStartError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sequencer.ErrUnknownScenario):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("scenario_not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case sequencer.IsConfigurationMissing(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("configuration_missing").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case persistence.IsExecutionNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("execution_not_found").
			WithDetail("execution not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	default:
		return internalError(c, err)
	}
}
