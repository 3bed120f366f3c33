// Package web provides HTTP handlers and REST API endpoints for journey administration.
package web

import (
	"net/http"
	"time"

	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const defaultCancelReason = "canceled by operator"

type APIHandlers struct {
	persistence persistence.Persistence
	authoring   *services.Authoring
	publishing  *services.Publishing
	starter     *journey.Starter
	validator   *validator.Validate
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	authoring *services.Authoring,
	publishing *services.Publishing,
	starter *journey.Starter,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		authoring:   authoring,
		publishing:  publishing,
		starter:     starter,
		validator:   validator,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	j := router.Group("/journeys")
	j.Post("/", h.CreateJourney)
	j.Get("/:id", h.GetJourney)
	j.Post("/:id/versions", h.SaveDraft)
	j.Put("/:id/versions/:versionId", h.SaveDraft)
	j.Get("/:id/versions/:versionId", h.GetVersion)
	j.Post("/:id/versions/:versionId/publish", h.PublishVersion)
	j.Post("/:id/pause", h.PauseJourney)
	j.Post("/:id/resume", h.ResumeJourney)
	j.Post("/:id/archive", h.ArchiveJourney)
	j.Post("/:id/triggers", h.SaveTrigger)
	j.Post("/:id/executions", h.StartExecution)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/cancel", h.CancelExecution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	check := "ok"

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.authoring.CreateJourney(c.Context(), &models.Journey{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	found, err := h.persistence.JourneyRepository().JourneyByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

// SaveDraft creates a draft version, or replaces the draft named by :versionId.
func (h *APIHandlers) SaveDraft(c fiber.Ctx) error {
	var req SaveDraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	versionID := c.Params("versionId")
	status := fiber.StatusOK

	if versionID == "" {
		versionID = uuid.New().String()
		status = fiber.StatusCreated
	}

	version, err := req.toVersion(versionID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	saved, err := h.authoring.SaveDraft(c.Context(), c.Params("id"), version)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(status).JSON(saved)
}

func (h *APIHandlers) GetVersion(c fiber.Ctx) error {
	version, err := h.persistence.JourneyRepository().VersionByID(c.Context(), c.Params("versionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if version.JourneyID != c.Params("id") {
		return notFound(c, "version_not_found", "journey version not found")
	}

	return c.JSON(version)
}

func (h *APIHandlers) PublishVersion(c fiber.Ctx) error {
	published, err := h.publishing.Publish(c.Context(), c.Params("id"), c.Params("versionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) PauseJourney(c fiber.Ctx) error {
	paused, err := h.publishing.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(paused)
}

func (h *APIHandlers) ResumeJourney(c fiber.Ctx) error {
	resumed, err := h.publishing.Resume(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(resumed)
}

func (h *APIHandlers) ArchiveJourney(c fiber.Ctx) error {
	archived, err := h.publishing.Archive(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(archived)
}

func (h *APIHandlers) SaveTrigger(c fiber.Ctx) error {
	var req SaveTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	trigger, err := h.authoring.SaveTrigger(c.Context(), c.Params("id"), &models.JourneyTrigger{
		Type:    models.TriggerType(req.Type),
		Config:  req.Config,
		Enabled: req.Enabled,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(trigger)
}

// StartExecution manually enrolls a contact into the journey's published version.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.starter.Start(c.Context(), journey.StartRequest{
		JourneyID: c.Params("id"),
		ContactID: req.ContactID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	executions := h.persistence.ExecutionRepository()
	id := c.Params("id")

	execution, err := executions.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	stepExecutions, err := executions.StepExecutions(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	logs, err := executions.Logs(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(ExecutionResponse{
		Execution:      execution,
		StepExecutions: stepExecutions,
		Logs:           logs,
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	var req CancelExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if req.Reason == "" {
		req.Reason = defaultCancelReason
	}

	execution, err := h.starter.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}
