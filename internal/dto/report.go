package dto

import "time"

// ReportSummary describes a registered report visible to the caller.
type ReportSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Module      string   `json:"module"`
	Permissions []string `json:"permissions,omitempty"`
}

// ReportDetail adds the definition the report renders with right now.
type ReportDetail struct {
	ReportSummary
	Definition   string     `json:"definition"`
	Overridden   bool       `json:"overridden"`
	ValidityFrom *time.Time `json:"validityFrom,omitempty"`
}

// RenderRequest is a request to run a registered report. A zero AsOf
// resolves the definition valid now.
type RenderRequest struct {
	Name      string
	Format    string
	Alternate string
	AsOf      time.Time
	Params    map[string]string
}

// RenderResult carries the generated document.
type RenderResult struct {
	Filename    string
	ContentType string
	Body        []byte
}
