package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/report-api/internal/models"
)

// ErrValidityOrder is returned when a new version would start before the
// version it replaces.
var ErrValidityOrder = errors.New("new version starts before the current version")

var overrideColumns = []string{"id", "name", "engine", "definition", "validity_from", "validity_to", "audit_user_id"}

const overrideSelect = `SELECT id, name, engine, definition, validity_from, validity_to, audit_user_id
FROM report_definitions`

// OverrideRepository persists effective-dated report definition versions.
type OverrideRepository struct {
	db      *sqlx.DB
	builder squirrel.StatementBuilderType
}

// NewOverrideRepository constructs the repository.
func NewOverrideRepository(db *sqlx.DB) *OverrideRepository {
	return &OverrideRepository{db: db, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// ActiveAt returns the version of name valid at asOf. The latest start wins
// if stored data ever overlaps.
func (r *OverrideRepository) ActiveAt(ctx context.Context, name string, asOf time.Time) (*models.DefinitionOverride, error) {
	const query = overrideSelect + `
WHERE name = $1 AND validity_from <= $2 AND (validity_to IS NULL OR validity_to > $2)
ORDER BY validity_from DESC LIMIT 1`
	var row models.DefinitionOverride
	if err := r.db.GetContext(ctx, &row, query, name, asOf); err != nil {
		return nil, fmt.Errorf("get active report definition: %w", err)
	}
	return &row, nil
}

// History returns every version of name ordered by start.
func (r *OverrideRepository) History(ctx context.Context, name string) ([]models.DefinitionOverride, error) {
	const query = overrideSelect + `
WHERE name = $1 ORDER BY validity_from ASC`
	var rows []models.DefinitionOverride
	if err := r.db.SelectContext(ctx, &rows, query, name); err != nil {
		return nil, fmt.Errorf("list report definition history: %w", err)
	}
	return rows, nil
}

// GetByID returns a single version.
func (r *OverrideRepository) GetByID(ctx context.Context, id string) (*models.DefinitionOverride, error) {
	const query = overrideSelect + ` WHERE id = $1`
	var row models.DefinitionOverride
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("get report definition: %w", err)
	}
	return &row, nil
}

// Replace closes the open version of row.Name at row.ValidityFrom and inserts
// row as the new open version, atomically. It returns the closed version, if any.
func (r *OverrideRepository) Replace(ctx context.Context, row *models.DefinitionOverride) (*models.DefinitionOverride, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.ValidityFrom.IsZero() {
		row.ValidityFrom = time.Now().UTC()
	}
	row.ValidityTo = nil

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace report definition: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = overrideSelect + `
WHERE name = $1 AND validity_to IS NULL FOR UPDATE`
	var current models.DefinitionOverride
	var closed *models.DefinitionOverride
	switch err := tx.GetContext(ctx, &current, lockQuery, row.Name); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("lock current report definition: %w", err)
	default:
		if row.ValidityFrom.Before(current.ValidityFrom) {
			return nil, ErrValidityOrder
		}
		if _, err := tx.ExecContext(ctx, `UPDATE report_definitions SET validity_to = $1 WHERE id = $2`, row.ValidityFrom, current.ID); err != nil {
			return nil, fmt.Errorf("close report definition: %w", err)
		}
		to := row.ValidityFrom
		current.ValidityTo = &to
		closed = &current
	}

	const insert = `INSERT INTO report_definitions (id, name, engine, definition, validity_from, validity_to, audit_user_id)
VALUES (:id, :name, :engine, :definition, :validity_from, :validity_to, :audit_user_id)`
	if _, err := tx.NamedExecContext(ctx, insert, row); err != nil {
		return nil, fmt.Errorf("insert report definition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace report definition: %w", err)
	}
	commit = true
	return closed, nil
}

// List returns versions matching filter, newest first per name, with the total count.
func (r *OverrideRepository) List(ctx context.Context, filter models.DefinitionFilter) ([]models.DefinitionOverride, int, error) {
	where := squirrel.And{}
	if filter.Name != "" {
		where = append(where, squirrel.Eq{"name": filter.Name})
	}
	if filter.Search != "" {
		where = append(where, squirrel.ILike{"name": "%" + filter.Search + "%"})
	}
	if !filter.ShowHistory {
		where = append(where, squirrel.Eq{"validity_to": nil})
	}

	countQuery, countArgs, err := r.builder.Select("COUNT(*)").From("report_definitions").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count report definitions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count report definitions: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	listQuery, listArgs, err := r.builder.Select(overrideColumns...).
		From("report_definitions").
		Where(where).
		OrderBy("name ASC", "validity_from DESC").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list report definitions: %w", err)
	}
	var rows []models.DefinitionOverride
	if err := r.db.SelectContext(ctx, &rows, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list report definitions: %w", err)
	}
	return rows, total, nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
