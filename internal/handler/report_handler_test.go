package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/internal/middleware"
	"github.com/noah-isme/report-api/internal/models"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type fakeReports struct {
	lastReq       dto.RenderRequest
	lastPrincipal *models.Principal
	result        *dto.RenderResult
	err           error
	detail        *dto.ReportDetail
}

func (f *fakeReports) Run(_ context.Context, req dto.RenderRequest, principal *models.Principal) (*dto.RenderResult, error) {
	f.lastReq = req
	f.lastPrincipal = principal
	return f.result, f.err
}

func (f *fakeReports) List(principal *models.Principal) []dto.ReportSummary {
	f.lastPrincipal = principal
	return []dto.ReportSummary{{Name: "claim_history", Module: "claim"}}
}

func (f *fakeReports) Describe(_ context.Context, name string, _ *models.Principal) (*dto.ReportDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestReportHandlerRenderStreamsInline(t *testing.T) {
	fake := &fakeReports{result: &dto.RenderResult{Filename: "claim_history.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}}
	handler := NewReportHandler(fake)
	principal := models.NewPrincipal("u-1", "131223")

	router := gin.New()
	router.GET("/report/:name/:format/", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, principal)
		handler.Render(c)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/claim_history/pdf/?chfId=070707070&chfId=ignored&alternate=v2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="claim_history.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3", rec.Body.String())

	assert.Equal(t, "claim_history", fake.lastReq.Name)
	assert.Equal(t, "pdf", fake.lastReq.Format)
	assert.Equal(t, "v2", fake.lastReq.Alternate)
	assert.Equal(t, map[string]string{"chfId": "070707070"}, fake.lastReq.Params)
	assert.Same(t, principal, fake.lastPrincipal)
}

func TestReportHandlerRenderAlternateSegment(t *testing.T) {
	fake := &fakeReports{result: &dto.RenderResult{Filename: "claim_history.xlsx", ContentType: "application/octet-stream"}}
	handler := NewReportHandler(fake)

	router := gin.New()
	router.GET("/report/:name/:format/", handler.Render)
	router.GET("/report/:name/:format/:alternate/", handler.Render)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/claim_history/xlsx/summary/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "summary", fake.lastReq.Alternate)
	assert.Equal(t, "xlsx", fake.lastReq.Format)
	assert.Empty(t, fake.lastReq.Params)
}

func TestReportHandlerRenderAsOf(t *testing.T) {
	fake := &fakeReports{result: &dto.RenderResult{Filename: "claim_history.pdf", ContentType: "application/pdf"}}
	router := gin.New()
	router.GET("/report/:name/:format/", NewReportHandler(fake).Render)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/claim_history/pdf/?asOf=2020-06-01&chfId=070707070", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), fake.lastReq.AsOf)
	assert.Equal(t, map[string]string{"chfId": "070707070"}, fake.lastReq.Params)

	fake.lastReq = dto.RenderRequest{}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/claim_history/pdf/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fake.lastReq.AsOf.IsZero())

	fake.lastReq = dto.RenderRequest{}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report/claim_history/pdf/?asOf=01-06-2020", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	assert.Empty(t, fake.lastReq.Name)
}

func TestReportHandlerRenderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "unknown report", err: appErrors.Clone(appErrors.ErrNotFound, "report not found"), status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "forbidden", err: appErrors.ErrForbidden, status: http.StatusForbidden, code: "FORBIDDEN"},
		{name: "format", err: appErrors.ErrUnsupportedFormat, status: http.StatusBadRequest, code: "UNSUPPORTED_FORMAT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewReportHandler(&fakeReports{err: tc.err})

			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/report/x/pdf/", nil)
			c.Params = gin.Params{{Key: "name", Value: "x"}, {Key: "format", Value: "pdf"}}

			handler.Render(c)

			assert.Equal(t, tc.status, rec.Code)
			var envelope responseEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			require.NotNil(t, envelope.Error)
			assert.Equal(t, tc.code, envelope.Error.Code)
		})
	}
}

func TestReportHandlerGetSetsMeta(t *testing.T) {
	fake := &fakeReports{detail: &dto.ReportDetail{
		ReportSummary: dto.ReportSummary{Name: "claim_history", Module: "claim"},
		Definition:    "{}",
		Overridden:    true,
	}}
	handler := NewReportHandler(fake)

	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	router.GET("/reports/:name", handler.Get)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/claim_history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["overridden"])

	var detail dto.ReportDetail
	require.NoError(t, json.Unmarshal(envelope.Data, &detail))
	assert.Equal(t, "claim_history", detail.Name)
}

func TestReportHandlerList(t *testing.T) {
	handler := NewReportHandler(&fakeReports{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/reports", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var list []dto.ReportSummary
	require.NoError(t, json.Unmarshal(envelope.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "claim", list[0].Module)
}
