package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/pkg/engine"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
	"github.com/noah-isme/report-api/pkg/storage"
)

// Preview request messages returned to the designer.
const (
	MsgPreviewFormat  = "outputFormat parameter missing or invalid"
	MsgPreviewValues  = "invalid report values"
	MsgPreviewFailure = "failed to generate report"
	MsgPreviewMissing = "preview not found or expired"
)

// PreviewFilename is the inline filename previews are served under.
const PreviewFilename = "report_preview"

// ArtifactStore holds rendered preview artifacts by name.
type ArtifactStore interface {
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
	CleanupOlderThan(ctx context.Context, ttl time.Duration) ([]string, error)
}

type handleSigner interface {
	Generate(name string) (string, time.Time, error)
	Parse(handle string, allowExpired bool) (string, time.Time, error)
}

type previewMetrics interface {
	ObserveRender(report, format string, size int, duration time.Duration, err error)
	RecordPreviewArtifact(event string, n int)
}

// PreviewServiceConfig configures designer previews.
type PreviewServiceConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	Fonts           *engine.FontSet
	EncodeErrors    string
}

// PreviewService renders ad-hoc definitions submitted by the designer and
// parks the results behind signed handles.
type PreviewService struct {
	store    ArtifactStore
	signer   handleSigner
	validate *validator.Validate
	metrics  previewMetrics
	cfg      PreviewServiceConfig
	logger   *zap.Logger
}

// NewPreviewService constructs the service. metrics is optional.
func NewPreviewService(store ArtifactStore, signer handleSigner, validate *validator.Validate, metrics previewMetrics, cfg PreviewServiceConfig, logger *zap.Logger) *PreviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &PreviewService{store: store, signer: signer, validate: validate, metrics: metrics, cfg: cfg, logger: logger}
}

// ValidateFormat checks a requested preview output format.
func (s *PreviewService) ValidateFormat(format string) error {
	if err := s.validate.Var(format, "required,oneof=pdf xlsx"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, MsgPreviewFormat)
	}
	return nil
}

// ParsePayload decodes a designer request body. When format is empty the
// body's outputFormat field is used.
func (s *PreviewService) ParsePayload(body []byte, format string) (*dto.PreviewPayload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, MsgPreviewValues)
	}

	payload := &dto.PreviewPayload{OutputFormat: format}
	if payload.OutputFormat == "" {
		if v, ok := raw["outputFormat"]; ok {
			_ = json.Unmarshal(v, &payload.OutputFormat)
		}
	}
	payload.OutputFormat = strings.ToLower(payload.OutputFormat)
	if err := s.ValidateFormat(payload.OutputFormat); err != nil {
		return nil, err
	}

	if err := decodeField(raw, "report", &payload.Report); err != nil {
		return nil, err
	}
	if err := decodeField(raw, "data", &payload.Data); err != nil {
		return nil, err
	}
	flag, ok := raw["isTestData"]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, MsgPreviewValues)
	}
	if err := json.Unmarshal(flag, &payload.IsTestData); err != nil || string(flag) == "null" {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, MsgPreviewValues)
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, MsgPreviewValues)
	}
	return payload, nil
}

func decodeField(raw map[string]json.RawMessage, key string, dst *map[string]interface{}) error {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return appErrors.Clone(appErrors.ErrBadRequest, MsgPreviewValues)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, MsgPreviewValues)
	}
	return nil
}

// Submit renders the payload into a new artifact and returns its handle.
// Artifact names are random so concurrent submissions never collide.
func (s *PreviewService) Submit(ctx context.Context, payload *dto.PreviewPayload) (string, error) {
	name := uuid.NewString() + "." + payload.OutputFormat
	w, err := s.store.Create(ctx, name)
	if err != nil {
		return "", storeFailure(err)
	}

	renderErr := s.render(payload, w)
	closeErr := w.Close()
	if renderErr != nil || closeErr != nil {
		if err := s.store.Delete(ctx, name); err != nil && !errors.Is(err, storage.ErrArtifactNotFound) {
			s.logger.Warn("failed to discard preview artifact", zap.String("artifact", name), zap.Error(err))
		}
		if renderErr != nil {
			return "", renderErr
		}
		return "", storeFailure(closeErr)
	}

	handle, _, err := s.signer.Generate(name)
	if err != nil {
		return "", storeFailure(err)
	}
	s.record("created", 1)
	return handle, nil
}

// Fetch returns the artifact behind handle.
func (s *PreviewService) Fetch(ctx context.Context, handle string) (*dto.RenderResult, error) {
	name, _, err := s.signer.Parse(handle, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, MsgPreviewMissing)
	}
	body, err := s.store.Read(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, MsgPreviewMissing)
		}
		return nil, storeFailure(err)
	}
	s.record("fetched", 1)
	format := strings.TrimPrefix(path.Ext(name), ".")
	return &dto.RenderResult{
		Filename:    PreviewFilename + "." + format,
		ContentType: engine.ContentType(format),
		Body:        body,
	}, nil
}

// RenderDirect renders the payload without storing it.
func (s *PreviewService) RenderDirect(_ context.Context, payload *dto.PreviewPayload) (*dto.RenderResult, error) {
	var buf bytes.Buffer
	if err := s.render(payload, &buf); err != nil {
		return nil, err
	}
	return &dto.RenderResult{
		Filename:    "preview." + payload.OutputFormat,
		ContentType: engine.ContentType(payload.OutputFormat),
		Body:        buf.Bytes(),
	}, nil
}

func (s *PreviewService) render(payload *dto.PreviewPayload, sink io.Writer) error {
	start := time.Now()
	counter := &countingWriter{w: sink}
	err := s.renderTo(payload, counter)
	if s.metrics != nil {
		s.metrics.ObserveRender("preview", payload.OutputFormat, int(counter.n), time.Since(start), err)
	}
	if err != nil {
		s.logger.Debug("preview render failed", zap.String("format", payload.OutputFormat), zap.Error(err))
	}
	return err
}

func (s *PreviewService) renderTo(payload *dto.PreviewPayload, sink io.Writer) error {
	def, err := engine.ParseValue(payload.Report)
	if err != nil {
		return err
	}
	opts := engine.Options{Fonts: s.cfg.Fonts, EncodeErrors: s.cfg.EncodeErrors, IsTestData: payload.IsTestData}
	return engine.Render(def, payload.Data, payload.OutputFormat, opts, sink)
}

// CleanupExpired removes artifacts older than the configured TTL.
func (s *PreviewService) CleanupExpired(ctx context.Context) int {
	removed, err := s.store.CleanupOlderThan(ctx, s.cfg.TTL)
	if err != nil {
		s.logger.Warn("preview cleanup failed", zap.Error(err))
	}
	if len(removed) > 0 {
		s.record("expired", len(removed))
		s.logger.Debug("preview artifacts removed", zap.Int("count", len(removed)))
	}
	return len(removed)
}

// StartCleanup periodically removes expired artifacts until ctx is done.
func (s *PreviewService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

func (s *PreviewService) record(event string, n int) {
	if s.metrics != nil {
		s.metrics.RecordPreviewArtifact(event, n)
	}
}

// PreviewErrorBody converts an engine failure into the designer's error list.
// It reports false for failures that are not about the submitted definition.
func PreviewErrorBody(err error) (dto.PreviewErrors, bool) {
	var verr engine.ValidationError
	if errors.As(err, &verr) {
		return dto.PreviewErrors{Errors: []interface{}{verr}}, true
	}
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return dto.PreviewErrors{}, false
	}
	switch appErr.Code {
	case appErrors.ErrInvalidDefinition.Code, appErrors.ErrDefinitionValidation.Code, appErrors.ErrRenderFailure.Code:
		return dto.PreviewErrors{Errors: []interface{}{appErrors.Detail(appErr)}}, true
	}
	return dto.PreviewErrors{}, false
}

func storeFailure(err error) error {
	return appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, fmt.Sprintf("%s: %v", MsgPreviewFailure, err))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
