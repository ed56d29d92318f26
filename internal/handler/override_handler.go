package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/internal/middleware"
	"github.com/noah-isme/report-api/internal/models"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
	"github.com/noah-isme/report-api/pkg/response"
)

type overrideManager interface {
	Create(ctx context.Context, input dto.OverrideInput, principal *models.Principal) []dto.MutationError
	CreateOrReplace(ctx context.Context, input dto.OverrideInput, principal *models.Principal) []dto.MutationError
	List(ctx context.Context, query dto.OverrideQuery) ([]models.DefinitionOverride, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.DefinitionOverride, error)
	History(ctx context.Context, name string) ([]models.DefinitionOverride, error)
}

// OverrideHandler manages effective-dated report definitions.
type OverrideHandler struct {
	overrides overrideManager
}

// NewOverrideHandler constructs handler.
func NewOverrideHandler(overrides overrideManager) *OverrideHandler {
	return &OverrideHandler{overrides: overrides}
}

// List godoc
// @Summary List report definition overrides
// @Tags Report Definitions
// @Produce json
// @Param name query string false "Report name"
// @Param search query string false "Name contains"
// @Param showHistory query bool false "Include closed versions"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /report-definitions [get]
func (h *OverrideHandler) List(c *gin.Context) {
	var query dto.OverrideQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	rows, pagination, err := h.overrides.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get a report definition override
// @Tags Report Definitions
// @Produce json
// @Param id path string true "Override ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /report-definitions/{id} [get]
func (h *OverrideHandler) Get(c *gin.Context) {
	row, err := h.overrides.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// History godoc
// @Summary List every definition version of a report
// @Tags Report Definitions
// @Produce json
// @Param name path string true "Report name"
// @Success 200 {object} response.Envelope
// @Router /reports/{name}/history [get]
func (h *OverrideHandler) History(c *gin.Context) {
	rows, err := h.overrides.History(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Create godoc
// @Summary Create a report definition version
// @Description Always answers 200; failures are listed in errors.
// @Tags Report Definitions
// @Accept json
// @Produce json
// @Param payload body dto.OverrideInput true "Definition"
// @Success 200 {object} dto.MutationResult
// @Router /report-definitions [post]
func (h *OverrideHandler) Create(c *gin.Context) {
	h.mutate(c, h.overrides.Create)
}

// Update godoc
// @Summary Replace the current report definition version
// @Description Closes the open version and inserts the new one. Always answers 200; failures are listed in errors.
// @Tags Report Definitions
// @Accept json
// @Produce json
// @Param payload body dto.OverrideInput true "Definition"
// @Success 200 {object} dto.MutationResult
// @Router /report-definitions [put]
func (h *OverrideHandler) Update(c *gin.Context) {
	h.mutate(c, h.overrides.CreateOrReplace)
}

func (h *OverrideHandler) mutate(c *gin.Context, apply func(context.Context, dto.OverrideInput, *models.Principal) []dto.MutationError) {
	var input dto.OverrideInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusOK, dto.MutationResult{Errors: []dto.MutationError{{
			Message: "invalid request body",
			Detail:  err.Error(),
		}}})
		return
	}
	c.JSON(http.StatusOK, dto.MutationResult{Errors: apply(c.Request.Context(), input, middleware.PrincipalFrom(c))})
}
