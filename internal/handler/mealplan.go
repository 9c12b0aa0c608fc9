package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/alexberardi/jarvis-recipes-server/internal/middleware"
	"github.com/alexberardi/jarvis-recipes-server/internal/model"
	"github.com/alexberardi/jarvis-recipes-server/internal/service"
	"github.com/alexberardi/jarvis-recipes-server/pkg/response"
)

type MealPlanHandler struct {
	service   *service.MealPlanService
	validator *validator.Validate
}

func NewMealPlanHandler(svc *service.MealPlanService, v *validator.Validate) *MealPlanHandler {
	return &MealPlanHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/mealplan/generate
// @Summary      Generate a meal plan
// @Description  Start an asynchronous job that fills requested meal slots from the user's recipes
// @Tags         MealPlan
// @Accept       json
// @Produce      json
// @Param        request body model.MealPlanGenerateRequest true "Meal plan request"
// @Success      202 {object} model.JobSubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/mealplan/generate [post]
func (h *MealPlanHandler) Generate(c *fiber.Ctx) error {
	var req model.MealPlanGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	result, err := h.service.Generate(c.Context(), userID, &req)
	if err != nil {
		return mapServiceError(c, err)
	}
	return response.Accepted(c, result)
}
