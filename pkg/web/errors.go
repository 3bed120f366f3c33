package web

import (
	"errors"

	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	return badRequestOf(c, "validation_error", detail)
}

func badRequestOf(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service, engine and persistence errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequestOf(c, problemType(err, "validation_error"), err.Error())

	case services.IsConflictError(err),
		errors.Is(err, journey.ErrJourneyNotActive),
		errors.Is(err, journey.ErrStepNotFound):
		return conflict(c, problemType(err, "conflict"), err.Error())

	case errors.Is(err, persistence.ErrJourneyNotFound):
		return notFound(c, "journey_not_found", "journey not found")

	case errors.Is(err, persistence.ErrVersionNotFound):
		return notFound(c, "version_not_found", "journey version not found")

	case errors.Is(err, persistence.ErrExecutionNotFound):
		return notFound(c, "execution_not_found", "execution not found")

	default:
		// Log unexpected errors but don't expose details
		return internalError(c, err)
	}
}

// problemType is the code of a wrapped ServiceError, or fallback.
func problemType(err error, fallback string) string {
	var serviceErr *services.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code != "" {
		return serviceErr.Code
	}

	return fallback
}
