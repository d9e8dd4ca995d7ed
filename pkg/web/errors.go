package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/triggers-frontend/pkg/manager"
)

func problem(c fiber.Ctx, status int, problemType string, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

// handleManagerError maps trigger manager errors to problem responses.
func handleManagerError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, manager.ErrInvalidTrigger), errors.Is(err, manager.ErrUnknownTriggerType):
		return badRequest(c, err.Error())
	case errors.Is(err, manager.ErrTriggerNotFound):
		return problem(c, fiber.StatusNotFound, "trigger_not_found", err.Error())
	case errors.Is(err, manager.ErrTriggerExists), errors.Is(err, manager.ErrTriggerNotRunning):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())
	default:
		return problem(c, fiber.StatusInternalServerError, "internal_error", err.Error())
	}
}
