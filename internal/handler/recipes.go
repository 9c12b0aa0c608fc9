package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/alexberardi/jarvis-recipes-server/internal/middleware"
	"github.com/alexberardi/jarvis-recipes-server/internal/model"
	"github.com/alexberardi/jarvis-recipes-server/internal/service"
	"github.com/alexberardi/jarvis-recipes-server/pkg/response"
)

type RecipesHandler struct {
	service     *service.IngestService
	validator   *validator.Validate
	maxAttempts int
}

func NewRecipesHandler(svc *service.IngestService, v *validator.Validate, maxAttempts int) *RecipesHandler {
	return &RecipesHandler{
		service:     svc,
		validator:   v,
		maxAttempts: maxAttempts,
	}
}

// ImportURL handles POST /api/recipes/import/url
// @Summary      Import recipe from URL
// @Description  Start an asynchronous recipe extraction job for a URL
// @Tags         Recipes
// @Accept       json
// @Produce      json
// @Param        request body model.ImportURLRequest true "Import request"
// @Success      202 {object} model.JobSubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      422 {object} model.PreflightResult
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/import/url [post]
func (h *RecipesHandler) ImportURL(c *fiber.Ctx) error {
	var req model.ImportURLRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	result, preflight, err := h.service.ImportURL(c.Context(), userID, &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	if preflight != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(preflight)
	}

	return response.Accepted(c, result)
}

// Preflight handles POST /api/recipes/import/preflight
// @Summary      Preflight a recipe URL
// @Description  Check whether a URL is fetchable before submitting a job
// @Tags         Recipes
// @Accept       json
// @Produce      json
// @Param        request body model.PreflightRequest true "Preflight request"
// @Success      200 {object} model.PreflightResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/import/preflight [post]
func (h *RecipesHandler) Preflight(c *fiber.Ctx) error {
	var req model.PreflightRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result := h.service.Preflight(c.Context(), &req)
	return response.OK(c, result)
}

// Ingest handles POST /api/recipes/ingest
// @Summary      Ingest recipe content
// @Description  Submit webview-extracted content, a URL to fetch, or uploaded images
// @Tags         Recipes
// @Accept       json
// @Produce      json
// @Param        request body model.IngestRequest true "Ingest request"
// @Success      200 {object} model.ParseResult
// @Success      202 {object} model.JobSubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/ingest [post]
func (h *RecipesHandler) Ingest(c *fiber.Ctx) error {
	var req model.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	outcome, err := h.service.Ingest(c.Context(), userID, &req)
	if err != nil {
		return mapServiceError(c, err)
	}

	if outcome.Job != nil {
		return response.Accepted(c, outcome.Job)
	}
	return response.OK(c, outcome.Parse)
}

// Status handles GET /api/recipes/jobs/:jobId
// @Summary      Get job status
// @Tags         Recipes
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/jobs/{jobId} [get]
func (h *RecipesHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Result handles GET /api/recipes/jobs/:jobId/result
// @Summary      Get job result
// @Description  Get the extraction result of a COMPLETE or COMMITTED job
// @Tags         Recipes
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobResult
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/jobs/{jobId}/result [get]
func (h *RecipesHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Cancel handles POST /api/recipes/jobs/:jobId/cancel
// @Summary      Cancel a job
// @Tags         Recipes
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobCancelResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/jobs/{jobId}/cancel [post]
func (h *RecipesHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Commit handles POST /api/recipes/jobs/:jobId/commit
// @Summary      Commit a job result
// @Description  Accept a COMPLETE job's result as a permanent recipe
// @Tags         Recipes
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobCommitResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/jobs/{jobId}/commit [post]
func (h *RecipesHandler) Commit(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Commit(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.OK(c, result)
}

// Retry handles POST /api/recipes/jobs/:jobId/retry
// @Summary      Retry a failed job
// @Tags         Recipes
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      202 {object} model.JobSubmitResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/recipes/jobs/{jobId}/retry [post]
func (h *RecipesHandler) Retry(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Retry(c.Context(), middleware.GetUserID(c), jobID, h.maxAttempts)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.Accepted(c, result)
}

// mapServiceError translates service sentinel errors to HTTP statuses.
func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Job belongs to another user")
	case errors.Is(err, service.ErrConflict):
		return response.Conflict(c, err.Error(), nil)
	}
	return response.ServiceError(c, err.Error())
}
