package handler

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed static/designer.html
var designerFS embed.FS

// DesignerHandler serves the report designer page. The page is meant to be
// framed by the admin frontend.
type DesignerHandler struct {
	page []byte
}

// NewDesignerHandler loads the embedded designer page.
func NewDesignerHandler() *DesignerHandler {
	page, err := designerFS.ReadFile("static/designer.html")
	if err != nil {
		panic("designer page missing from build: " + err.Error())
	}
	return &DesignerHandler{page: page}
}

// Page godoc
// @Summary Report designer
// @Tags Preview
// @Produce html
// @Success 200 {string} string
// @Router /reportbro/designer [get]
func (h *DesignerHandler) Page(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", h.page)
}
