package web

import (
	"errors"

	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/services"
	"github.com/dukex/applyflow/pkg/transmission"
	"github.com/dukex/applyflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func unauthorized(c fiber.Ctx) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", "missing "+HeaderUserID+" header")
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps service, workflow and persistence errors to problems.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		if errors.Is(err, workflow.ErrInvalidCheckpoint) {
			return problem(c, fiber.StatusConflict, "invalid_checkpoint", err.Error())
		}

		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case errors.Is(err, persistence.ErrJobNotFound):
		return problem(c, fiber.StatusNotFound, "job_not_found", "job not found")

	case persistence.IsApplicationNotFound(err):
		return problem(c, fiber.StatusNotFound, "application_not_found", "application not found")

	case persistence.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, transmission.ErrRejected):
		return problem(c, fiber.StatusBadGateway, "credential_sync_rejected", err.Error())

	default:
		return internalError(c, err)
	}
}
