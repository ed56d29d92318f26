package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/internal/service"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
	"github.com/noah-isme/report-api/pkg/response"
)

type previewer interface {
	ValidateFormat(format string) error
	ParsePayload(body []byte, format string) (*dto.PreviewPayload, error)
	Submit(ctx context.Context, payload *dto.PreviewPayload) (string, error)
	Fetch(ctx context.Context, handle string) (*dto.RenderResult, error)
	RenderDirect(ctx context.Context, payload *dto.PreviewPayload) (*dto.RenderResult, error)
}

// PreviewHandler speaks the designer's preview protocol. Responses are plain
// text because the designer parses them verbatim.
type PreviewHandler struct {
	previews previewer
	logger   *zap.Logger
}

// NewPreviewHandler constructs handler.
func NewPreviewHandler(previews previewer, logger *zap.Logger) *PreviewHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewHandler{previews: previews, logger: logger}
}

// Submit godoc
// @Summary Render a designer preview
// @Description Renders the posted definition and answers "key:<handle>", or an error list when the definition is invalid.
// @Tags Preview
// @Accept json
// @Produce plain
// @Param payload body dto.PreviewPayload true "Definition and data"
// @Success 200 {string} string "key:<handle>"
// @Failure 400 {string} string
// @Router /reportbro/preview [put]
func (h *PreviewHandler) Submit(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, service.MsgPreviewValues)
		return
	}
	payload, err := h.previews.ParsePayload(body, "")
	if err != nil {
		plainError(c, err)
		return
	}

	handle, err := h.previews.Submit(c.Request.Context(), payload)
	if err != nil {
		if errs, ok := service.PreviewErrorBody(err); ok {
			c.JSON(http.StatusOK, errs)
			return
		}
		h.logger.Warn("preview submission failed", zap.Error(err))
		plainError(c, err)
		return
	}
	c.String(http.StatusOK, "key:"+handle)
}

// Fetch godoc
// @Summary Fetch a designer preview
// @Description With key the stored preview is returned; without it the request body is rendered directly.
// @Description The content type follows the stored artifact, not outputFormat: pdf previews answer application/pdf and xlsx previews answer the spreadsheet type.
// @Tags Preview
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param outputFormat query string true "Output format" Enums(pdf, xlsx)
// @Param key query string false "Handle returned by PUT"
// @Success 200 {file} file
// @Failure 400 {string} string
// @Router /reportbro/preview [get]
func (h *PreviewHandler) Fetch(c *gin.Context) {
	format := c.Query("outputFormat")
	if err := h.previews.ValidateFormat(format); err != nil {
		plainError(c, err)
		return
	}

	if key := c.Query("key"); key != "" {
		result, err := h.previews.Fetch(c.Request.Context(), key)
		if err != nil {
			plainError(c, err)
			return
		}
		response.Document(c, result.ContentType, result.Filename, true, result.Body)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, service.MsgPreviewValues)
		return
	}
	payload, err := h.previews.ParsePayload(body, format)
	if err != nil {
		plainError(c, err)
		return
	}
	result, err := h.previews.RenderDirect(c.Request.Context(), payload)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Status >= http.StatusInternalServerError {
			h.logger.Warn("direct preview failed", zap.Error(err))
		}
		c.String(http.StatusBadRequest, service.MsgPreviewFailure+": "+appErrors.Detail(err))
		return
	}
	response.Document(c, result.ContentType, result.Filename, true, result.Body)
}

func plainError(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	status := appErr.Status
	if status >= http.StatusInternalServerError {
		status = http.StatusBadRequest
	}
	c.String(status, appErr.Message)
}
