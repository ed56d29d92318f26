package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/internal/middleware"
	"github.com/noah-isme/report-api/internal/models"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
	"github.com/noah-isme/report-api/pkg/response"
)

const asOfLayout = "2006-01-02"

// reservedRenderParams are consumed by the handler and never reach the data provider.
var reservedRenderParams = map[string]struct{}{
	"alternate": {},
	"asOf":      {},
}

type reportRunner interface {
	Run(ctx context.Context, req dto.RenderRequest, principal *models.Principal) (*dto.RenderResult, error)
	List(principal *models.Principal) []dto.ReportSummary
	Describe(ctx context.Context, name string, principal *models.Principal) (*dto.ReportDetail, error)
}

// ReportHandler exposes registered reports.
type ReportHandler struct {
	reports reportRunner
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportRunner) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Render godoc
// @Summary Render a registered report
// @Description Query parameters other than alternate and asOf are handed to the report's data provider.
// @Tags Reports
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param name path string true "Report name"
// @Param format path string true "Output format" Enums(pdf, xlsx)
// @Param alternate query string false "Alternate definition name"
// @Param asOf query string false "Resolve the definition valid on this date (YYYY-MM-DD), defaults to today"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /report/{name}/{format}/ [get]
// @Router /report/{name}/{format}/{alternate}/ [get]
func (h *ReportHandler) Render(c *gin.Context) {
	var asOf time.Time
	if raw := c.Query("asOf"); raw != "" {
		parsed, err := time.Parse(asOfLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "asOf must be a date formatted YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}

	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if _, reserved := reservedRenderParams[key]; reserved || len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}

	alternate := c.Param("alternate")
	if alternate == "" {
		alternate = c.Query("alternate")
	}
	req := dto.RenderRequest{
		Name:      c.Param("name"),
		Format:    c.Param("format"),
		Alternate: alternate,
		AsOf:      asOf,
		Params:    params,
	}
	result, err := h.reports.Run(c.Request.Context(), req, middleware.PrincipalFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, result.ContentType, result.Filename, true, result.Body)
}

// List godoc
// @Summary List reports the caller may run
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.reports.List(middleware.PrincipalFrom(c)), nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Describe a report and its effective definition
// @Tags Reports
// @Produce json
// @Param name path string true "Report name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/{name} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	detail, err := h.reports.Describe(c.Request.Context(), c.Param("name"), middleware.PrincipalFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "overridden", detail.Overridden)
	response.JSON(c, http.StatusOK, detail, nil, middleware.ExtractMeta(c))
}
