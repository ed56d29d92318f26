package service

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/dto"
	"github.com/noah-isme/report-api/internal/models"
	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/pkg/engine"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
	"github.com/noah-isme/report-api/pkg/jobs"
)

type reportCatalog interface {
	Lookup(name string) (registry.Descriptor, bool)
	ListVisible(principal *models.Principal) []registry.Descriptor
	All() []registry.Descriptor
}

type definitionResolver interface {
	Resolve(ctx context.Context, name, fallback string, asOf time.Time) (ResolvedDefinition, error)
}

type renderMetrics interface {
	ObserveRender(report, format string, size int, duration time.Duration, err error)
	RecordAuditFailure()
}

type auditQueue interface {
	TryEnqueue(job jobs.Job) error
}

// RenderServiceConfig configures the render entry point.
type RenderServiceConfig struct {
	// QueryPermissions grant access to every report.
	QueryPermissions []string
	Fonts            *engine.FontSet
	EncodeErrors     string
}

// RenderService runs registered reports.
type RenderService struct {
	reports  reportCatalog
	resolver definitionResolver
	audit    auditQueue
	metrics  renderMetrics
	cfg      RenderServiceConfig
	logger   *zap.Logger
}

// NewRenderService constructs the service. audit and metrics are optional.
func NewRenderService(reports reportCatalog, resolver definitionResolver, audit auditQueue, metrics renderMetrics, cfg RenderServiceConfig, logger *zap.Logger) *RenderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderService{reports: reports, resolver: resolver, audit: audit, metrics: metrics, cfg: cfg, logger: logger}
}

// Run fetches the report's data, resolves the definition valid at req.AsOf
// (today when zero) and renders it in the requested format.
func (s *RenderService) Run(ctx context.Context, req dto.RenderRequest, principal *models.Principal) (*dto.RenderResult, error) {
	desc, ok := s.reports.Lookup(req.Name)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if !s.allowed(desc, principal) {
		return nil, appErrors.ErrForbidden
	}
	if !engine.SupportedFormat(req.Format) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, appErrors.ErrUnsupportedFormat.Message+": "+req.Format)
	}
	if req.Alternate != "" {
		s.logger.Debug("alternate report variant requested", zap.String("report", req.Name), zap.String("alternate", req.Alternate))
	}

	data, err := desc.DataFetch(ctx, principal, req.Params)
	if err != nil {
		s.logger.Error("report data fetch failed", zap.String("report", req.Name), zap.Error(err))
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch report data")
	}

	resolved, err := s.resolver.Resolve(ctx, req.Name, desc.DefaultDefinition, req.AsOf)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve report definition")
	}
	if resolved.IsBuiltin() {
		if data, err = engine.DumpData(req.Name, data); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrRenderFailure.Code, appErrors.ErrRenderFailure.Status, appErrors.ErrRenderFailure.Message)
		}
	}

	start := time.Now()
	body, err := s.render(resolved.Text, data, req.Format)
	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveRender(req.Name, req.Format, len(body), duration, err)
	}
	if err != nil {
		s.logger.Error("report render failed", zap.String("report", req.Name), zap.String("format", req.Format), zap.Error(err))
		return nil, err
	}

	s.recordGenerated(req, principal, len(body), duration, resolved.Source == SourceOverride)
	return &dto.RenderResult{
		Filename:    req.Name + "." + req.Format,
		ContentType: engine.ContentType(req.Format),
		Body:        body,
	}, nil
}

func (s *RenderService) render(text string, data map[string]interface{}, format string) ([]byte, error) {
	def, err := engine.Parse([]byte(text))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	opts := engine.Options{Fonts: s.cfg.Fonts, EncodeErrors: s.cfg.EncodeErrors}
	if err := engine.Render(def, data, format, opts, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// allowed grants access to reports without permissions, and otherwise to
// holders of either the blanket query permissions or the report's own.
func (s *RenderService) allowed(desc registry.Descriptor, principal *models.Principal) bool {
	if len(desc.Permissions) == 0 {
		return true
	}
	return principal.HasPerms(s.cfg.QueryPermissions...) || principal.HasPerms(desc.Permissions...)
}

func (s *RenderService) recordGenerated(req dto.RenderRequest, principal *models.Principal, size int, duration time.Duration, overridden bool) {
	if s.audit == nil {
		return
	}
	record := models.GeneratedReport{
		ReportName: req.Name,
		Format:     req.Format,
		SizeBytes:  int64(size),
		DurationMS: duration.Milliseconds(),
		Overridden: overridden,
		CreatedAt:  time.Now().UTC(),
	}
	if principal.Authenticated() {
		id := principal.ID
		record.PrincipalID = &id
	}
	job := jobs.Job{ID: uuid.NewString(), Type: AuditJobType, Payload: record}
	if err := s.audit.TryEnqueue(job); err != nil {
		s.logger.Warn("generated report audit dropped", zap.String("report", req.Name), zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordAuditFailure()
		}
	}
}

// List returns the reports the principal may run.
func (s *RenderService) List(principal *models.Principal) []dto.ReportSummary {
	var descs []registry.Descriptor
	if principal.HasPerms(s.cfg.QueryPermissions...) {
		descs = s.reports.All()
	} else {
		descs = s.reports.ListVisible(principal)
	}
	out := make([]dto.ReportSummary, 0, len(descs))
	seen := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if _, dup := seen[d.Name]; dup {
			continue
		}
		seen[d.Name] = struct{}{}
		out = append(out, summary(d))
	}
	return out
}

// Describe returns a report with the definition it currently renders with.
func (s *RenderService) Describe(ctx context.Context, name string, principal *models.Principal) (*dto.ReportDetail, error) {
	desc, ok := s.reports.Lookup(name)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if !s.allowed(desc, principal) {
		return nil, appErrors.ErrForbidden
	}
	resolved, err := s.resolver.Resolve(ctx, name, desc.DefaultDefinition, time.Time{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve report definition")
	}
	detail := &dto.ReportDetail{
		ReportSummary: summary(desc),
		Definition:    resolved.Text,
		Overridden:    resolved.Source == SourceOverride,
	}
	if resolved.Override != nil {
		from := resolved.Override.ValidityFrom
		detail.ValidityFrom = &from
	}
	return detail, nil
}

func summary(d registry.Descriptor) dto.ReportSummary {
	return dto.ReportSummary{
		Name:        d.Name,
		Description: d.Description,
		Module:      d.Module,
		Permissions: d.Permissions,
	}
}
