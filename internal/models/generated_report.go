package models

import "time"

// GeneratedReport records one successful render for auditing.
type GeneratedReport struct {
	ID          string    `db:"id" json:"id"`
	ReportName  string    `db:"report_name" json:"reportName"`
	Format      string    `db:"format" json:"format"`
	PrincipalID *string   `db:"principal_id" json:"principalId,omitempty"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	DurationMS  int64     `db:"duration_ms" json:"durationMs"`
	Overridden  bool      `db:"overridden" json:"overridden"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
