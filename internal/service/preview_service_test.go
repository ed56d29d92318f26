package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/pkg/engine"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
	"github.com/noah-isme/report-api/pkg/storage"
)

const previewBody = `{
  "outputFormat": "pdf",
  "isTestData": true,
  "report": {
    "parameters": [{"name": "title", "type": "string", "testData": "Preview"}],
    "docElements": [{"id": 1, "elementType": "text", "x": 0, "y": 0, "width": 200, "height": 20, "content": "${title}"}]
  },
  "data": {}
}`

type previewMetricsStub struct {
	events map[string]int
}

func (m *previewMetricsStub) ObserveRender(report, format string, size int, duration time.Duration, err error) {}

func (m *previewMetricsStub) RecordPreviewArtifact(event string, n int) {
	if m.events == nil {
		m.events = map[string]int{}
	}
	m.events[event] += n
}

func titledPreview(format, title string) string {
	return fmt.Sprintf(`{
  "outputFormat": %q,
  "isTestData": true,
  "report": {
    "parameters": [{"name": "title", "type": "string", "testData": %q}],
    "docElements": [{"id": 1, "elementType": "text", "x": 0, "y": 0, "width": 200, "height": 20, "content": "${title}"}]
  },
  "data": {}
}`, format, title)
}

func previewTitle(t *testing.T, body []byte) string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	title, err := f.GetCellValue("Report", "A1")
	require.NoError(t, err)
	return title
}

func newPreviewService(t *testing.T) (*PreviewService, string, *previewMetricsStub) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	metrics := &previewMetricsStub{}
	svc := NewPreviewService(store, storage.NewHandleSigner("secret", time.Hour), nil, metrics, PreviewServiceConfig{TTL: time.Hour}, zap.NewNop())
	return svc, dir, metrics
}

func TestPreviewParsePayload(t *testing.T) {
	svc, _, _ := newPreviewService(t)

	payload, err := svc.ParsePayload([]byte(previewBody), "")
	require.NoError(t, err)
	assert.Equal(t, "pdf", payload.OutputFormat)
	assert.True(t, payload.IsTestData)

	payload, err = svc.ParsePayload([]byte(previewBody), "xlsx")
	require.NoError(t, err)
	assert.Equal(t, "xlsx", payload.OutputFormat)

	cases := map[string]struct {
		body    string
		format  string
		message string
	}{
		"missing format":     {body: `{"report":{},"data":{}}`, message: MsgPreviewFormat},
		"unknown format":     {body: `{"report":{},"data":{}}`, format: "docx", message: MsgPreviewFormat},
		"report not object":  {body: `{"outputFormat":"pdf","report":"x","data":{}}`, message: MsgPreviewValues},
		"missing data":       {body: `{"outputFormat":"pdf","report":{}}`, message: MsgPreviewValues},
		"test flag not bool": {body: `{"outputFormat":"pdf","report":{},"data":{},"isTestData":"yes"}`, message: MsgPreviewValues},
		"missing test flag":  {body: `{"outputFormat":"pdf","report":{},"data":{}}`, message: MsgPreviewValues},
		"not json":           {body: `<xml/>`, message: MsgPreviewValues},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ParsePayload([]byte(tc.body), tc.format)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrBadRequest.Code, appErr.Code)
			assert.Equal(t, tc.message, appErr.Message)
		})
	}
}

func TestPreviewSubmitAndFetch(t *testing.T) {
	svc, dir, metrics := newPreviewService(t)
	ctx := context.Background()
	payload, err := svc.ParsePayload([]byte(previewBody), "")
	require.NoError(t, err)

	first, err := svc.Submit(ctx, payload)
	require.NoError(t, err)
	second, err := svc.Submit(ctx, payload)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	result, err := svc.Fetch(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "report_preview.pdf", result.Filename)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Body, []byte("%PDF")))
	assert.Equal(t, 2, metrics.events["created"])
	assert.Equal(t, 1, metrics.events["fetched"])

	_, err = svc.Fetch(ctx, "not-a-handle")
	assert.ErrorIs(t, err, appErrors.ErrBadRequest)
}

func TestPreviewFetchReturnsOwnArtifact(t *testing.T) {
	svc, _, _ := newPreviewService(t)
	ctx := context.Background()

	handles := make(map[string]string)
	for _, title := range []string{"Alpha", "Beta"} {
		payload, err := svc.ParsePayload([]byte(titledPreview("xlsx", title)), "")
		require.NoError(t, err)
		handle, err := svc.Submit(ctx, payload)
		require.NoError(t, err)
		handles[title] = handle
	}
	pdfPayload, err := svc.ParsePayload([]byte(titledPreview("pdf", "Gamma")), "")
	require.NoError(t, err)
	pdfHandle, err := svc.Submit(ctx, pdfPayload)
	require.NoError(t, err)

	// Fetch in reverse submission order so a handle cannot match by position.
	pdfResult, err := svc.Fetch(ctx, pdfHandle)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfResult.ContentType)
	assert.True(t, bytes.HasPrefix(pdfResult.Body, []byte("%PDF")))

	for _, title := range []string{"Beta", "Alpha"} {
		result, err := svc.Fetch(ctx, handles[title])
		require.NoError(t, err)
		assert.Equal(t, "report_preview.xlsx", result.Filename)
		assert.Equal(t, engine.ContentType(engine.FormatXLSX), result.ContentType)
		assert.Equal(t, title, previewTitle(t, result.Body))
	}

	// Fetching leaves the artifact in place for the designer's next request.
	again, err := svc.Fetch(ctx, handles["Alpha"])
	require.NoError(t, err)
	assert.Equal(t, "Alpha", previewTitle(t, again.Body))
}

func TestPreviewSubmitReturnsDefinitionErrors(t *testing.T) {
	svc, dir, _ := newPreviewService(t)
	payload, err := svc.ParsePayload([]byte(`{"outputFormat":"pdf","report":{"documentProperties":{"pageFormat":"B9"},"docElements":[]},"data":{},"isTestData":false}`), "")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), payload)
	require.Error(t, err)
	body, ok := PreviewErrorBody(err)
	require.True(t, ok)
	require.Len(t, body.Errors, 1)
	verr, ok := body.Errors[0].(engine.ValidationError)
	require.True(t, ok)
	assert.Equal(t, "errorMsgInvalidPageFormat", verr.MsgKey)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	payload.Report = map[string]interface{}{"parameters": []interface{}{}}
	_, err = svc.Submit(context.Background(), payload)
	body, ok = PreviewErrorBody(err)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"docElements missing"}, body.Errors)

	_, ok = PreviewErrorBody(appErrors.ErrBadRequest)
	assert.False(t, ok)
}

func TestPreviewRenderDirect(t *testing.T) {
	svc, dir, _ := newPreviewService(t)
	payload, err := svc.ParsePayload([]byte(previewBody), "xlsx")
	require.NoError(t, err)

	result, err := svc.RenderDirect(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "preview.xlsx", result.Filename)
	assert.True(t, bytes.HasPrefix(result.Body, []byte("PK")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPreviewCleanupExpired(t *testing.T) {
	svc, dir, metrics := newPreviewService(t)
	ctx := context.Background()
	payload, err := svc.ParsePayload([]byte(previewBody), "")
	require.NoError(t, err)
	handle, err := svc.Submit(ctx, payload)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, entries[0].Name()), old, old))

	assert.Equal(t, 1, svc.CleanupExpired(ctx))
	assert.Equal(t, 1, metrics.events["expired"])

	_, err = svc.Fetch(ctx, handle)
	assert.ErrorIs(t, err, appErrors.ErrBadRequest)
}
