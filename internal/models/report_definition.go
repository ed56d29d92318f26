package models

import "time"

// Engine identifies the templating engine a definition targets.
type Engine int

// EngineReportBro is the only engine currently supported.
const EngineReportBro Engine = 0

// DefinitionOverride is one effective-dated version of a report definition.
// Its validity is the half-open interval [ValidityFrom, ValidityTo); a nil
// ValidityTo means the version is still open.
type DefinitionOverride struct {
	ID           string     `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Engine       Engine     `db:"engine" json:"engine"`
	Definition   string     `db:"definition" json:"definition"`
	ValidityFrom time.Time  `db:"validity_from" json:"validityFrom"`
	ValidityTo   *time.Time `db:"validity_to" json:"validityTo"`
	AuditUserID  *string    `db:"audit_user_id" json:"auditUserId,omitempty"`
}

// Open reports whether the version has no end date.
func (o DefinitionOverride) Open() bool {
	return o.ValidityTo == nil
}

// ValidAt reports whether at falls inside the version's validity interval.
func (o DefinitionOverride) ValidAt(at time.Time) bool {
	if at.Before(o.ValidityFrom) {
		return false
	}
	return o.ValidityTo == nil || at.Before(*o.ValidityTo)
}

// DefinitionFilter narrows override listings.
type DefinitionFilter struct {
	Name        string
	Search      string
	ShowHistory bool
	Page        int
	PageSize    int
}
