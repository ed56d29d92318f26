package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/models"
	"github.com/noah-isme/report-api/pkg/jobs"
)

// AuditJobType marks queue jobs carrying a generated report audit row.
const AuditJobType = "generated_report"

type generatedReportStore interface {
	Create(ctx context.Context, report *models.GeneratedReport) error
}

// NewAuditHandler returns the queue handler that persists generated report rows.
func NewAuditHandler(store generatedReportStore, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		if job.Type != AuditJobType {
			logger.Warn("unexpected audit job type", zap.String("type", job.Type), zap.String("job_id", job.ID))
			return nil
		}
		record, ok := job.Payload.(models.GeneratedReport)
		if !ok {
			return fmt.Errorf("audit job %s: unexpected payload %T", job.ID, job.Payload)
		}
		if err := store.Create(ctx, &record); err != nil {
			return err
		}
		logger.Debug("generated report recorded", zap.String("report", record.ReportName), zap.String("id", record.ID))
		return nil
	}
}
