package dto

import (
	"time"

	"github.com/noah-isme/report-api/internal/models"
)

// OverrideInput creates a new effective-dated report definition version. UUID
// names the version being replaced and is required on update.
type OverrideInput struct {
	UUID         string         `json:"uuid" validate:"omitempty,uuid"`
	Name         string         `json:"name" validate:"required,max=255"`
	Engine       *models.Engine `json:"engine" validate:"omitempty,eq=0"`
	Definition   string         `json:"definition"`
	ValidityFrom *time.Time     `json:"validityFrom"`
}

// MutationError is a single failure reported by a mutation.
type MutationError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// MutationResult is the response body of every mutation endpoint; a nil
// Errors list means success.
type MutationResult struct {
	Errors []MutationError `json:"errors"`
}

// OverrideQuery mirrors supported listing filters.
type OverrideQuery struct {
	Name        string `form:"name"`
	Search      string `form:"search"`
	ShowHistory bool   `form:"showHistory"`
	Page        int    `form:"page"`
	PageSize    int    `form:"page_size"`
}
