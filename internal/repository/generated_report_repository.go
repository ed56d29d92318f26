package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/report-api/internal/models"
)

// GeneratedReportRepository stores audit rows for rendered reports.
type GeneratedReportRepository struct {
	db *sqlx.DB
}

// NewGeneratedReportRepository constructs the repository.
func NewGeneratedReportRepository(db *sqlx.DB) *GeneratedReportRepository {
	return &GeneratedReportRepository{db: db}
}

// Create inserts a new audit row with generated defaults.
func (r *GeneratedReportRepository) Create(ctx context.Context, report *models.GeneratedReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO generated_reports (id, report_name, format, principal_id, size_bytes, duration_ms, overridden, created_at)
VALUES (:id, :report_name, :format, :principal_id, :size_bytes, :duration_ms, :overridden, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create generated report: %w", err)
	}
	return nil
}
