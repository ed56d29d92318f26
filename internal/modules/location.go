package modules

import "github.com/noah-isme/report-api/internal/registry"

// LocationModule is installed for its location hierarchy; it has no reports.
type LocationModule struct{}

func (m *LocationModule) Name() string { return "location" }

func (m *LocationModule) Reports() registry.Contribution {
	return registry.Absent()
}
