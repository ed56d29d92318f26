// Package modules holds the business modules compiled into the service and the
// reports each of them contributes.
package modules

import (
	"context"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/pkg/config"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
)

//go:embed templates/*.json
var templates embed.FS

const dateLayout = "2006-01-02"

// ProcedureCaller runs allow-listed reporting procedures.
type ProcedureCaller interface {
	Call(ctx context.Context, proc string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// Deps are the shared resources modules fetch report data with.
type Deps struct {
	DB          *sqlx.DB
	Procedures  ProcedureCaller
	Permissions config.PermissionsConfig
}

// Installed is the definitive list of modules compiled into the binary, in
// discovery order.
func Installed(deps Deps) []registry.Provider {
	return []registry.Provider{
		&InsureeModule{procs: deps.Procedures, perms: deps.Permissions},
		&ClaimModule{db: deps.DB, perms: deps.Permissions},
		&ContributionModule{db: deps.DB, perms: deps.Permissions},
		&LocationModule{},
	}
}

func defaultDefinition(name string) (string, error) {
	raw, err := templates.ReadFile("templates/" + name + ".json")
	if err != nil {
		return "", fmt.Errorf("default definition %s: %w", name, err)
	}
	return string(raw), nil
}

// build turns report specs into a contribution; any failure marks the module broken.
func build(specs ...reportSpec) registry.Contribution {
	descs := make([]registry.Descriptor, 0, len(specs))
	for _, s := range specs {
		def, err := defaultDefinition(s.name)
		if err != nil {
			return registry.Broken(err)
		}
		desc, err := registry.NewDescriptor(s.name, def, s.fetch, s.perms...)
		if err != nil {
			return registry.Broken(err)
		}
		desc.Description = s.description
		descs = append(descs, desc)
	}
	return registry.Provided(descs...)
}

type reportSpec struct {
	name        string
	description string
	fetch       registry.DataFetch
	perms       []string
}

func paramDate(params map[string]string, key string, required bool) (*time.Time, error) {
	raw := strings.TrimSpace(params[key])
	if raw == "" {
		if required {
			return nil, appErrors.Clone(appErrors.ErrValidation, key+" is required")
		}
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+key)
	}
	return &t, nil
}

func paramInt(params map[string]string, key string, required bool) (*int64, error) {
	raw := strings.TrimSpace(params[key])
	if raw == "" {
		if required {
			return nil, appErrors.Clone(appErrors.ErrValidation, key+" is required")
		}
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid "+key)
	}
	return &v, nil
}

func paramString(params map[string]string, key string, required bool) (string, error) {
	v := strings.TrimSpace(params[key])
	if v == "" && required {
		return "", appErrors.Clone(appErrors.ErrValidation, key+" is required")
	}
	return v, nil
}

// queryMaps runs a query and returns each row keyed by column name.
func queryMaps(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) ([]map[string]interface{}, error) {
	if db == nil {
		return nil, fmt.Errorf("report database not configured")
	}
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			switch typed := v.(type) {
			case []byte:
				row[k] = string(typed)
			case time.Time:
				row[k] = typed.Format(dateLayout)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toFloat(v interface{}) float64 {
	switch typed := v.(type) {
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int64:
		return float64(typed)
	case int:
		return float64(typed)
	case string:
		f, _ := strconv.ParseFloat(typed, 64)
		return f
	}
	return 0
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
