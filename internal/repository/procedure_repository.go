package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrProcedureNotAllowed is returned for procedures outside the allow-list.
var ErrProcedureNotAllowed = errors.New("stored procedure not allowed")

var paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// StoredProcedureRepository calls legacy reporting functions by name.
type StoredProcedureRepository struct {
	db      *sqlx.DB
	allowed map[string]struct{}
}

// NewStoredProcedureRepository constructs the repository with the procedures it may call.
func NewStoredProcedureRepository(db *sqlx.DB, allowed []string) *StoredProcedureRepository {
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	return &StoredProcedureRepository{db: db, allowed: set}
}

// Call executes proc with named arguments and returns every row as a column map.
// Parameter names are validated; values are always bound.
func (r *StoredProcedureRepository) Call(ctx context.Context, proc string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if _, ok := r.allowed[proc]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcedureNotAllowed, proc)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		if !paramNamePattern.MatchString(name) {
			return nil, fmt.Errorf("invalid parameter name %q for %s", name, proc)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("%s => $%d", pq.QuoteIdentifier(name), i+1)
		args[i] = params[name]
	}
	query := fmt.Sprintf("SELECT * FROM %s(%s)", pq.QuoteIdentifier(proc), strings.Join(placeholders, ", "))

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", proc, err)
	}
	defer rows.Close()

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", proc, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", proc, err)
	}
	return result, nil
}
