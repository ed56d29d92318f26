package modules

import (
	"context"

	"github.com/noah-isme/report-api/internal/models"
	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/pkg/config"
)

// Reporting procedures of the insuree module.
const (
	ProcInsureesWithoutPhotos = "uspSSRSInsureeWithoutPhotos"
	ProcEnrolledFamilies      = "uspSSRSEnroledFamilies"
)

// InsureeModule reports on insurees and enrolled families through the legacy
// reporting procedures.
type InsureeModule struct {
	procs ProcedureCaller
	perms config.PermissionsConfig
}

func (m *InsureeModule) Name() string { return "insuree" }

func (m *InsureeModule) Reports() registry.Contribution {
	return build(
		reportSpec{
			name:        "insurees_without_photos",
			description: "Insurees without a photo, by enrolment officer and location",
			fetch:       m.insureesWithoutPhotos,
			perms:       m.perms.InsureesWithoutPhotos,
		},
		reportSpec{
			name:        "enrolled_families",
			description: "Families enrolled in a location over a period",
			fetch:       m.enrolledFamilies,
			perms:       m.perms.EnrolledFamilies,
		},
	)
}

func (m *InsureeModule) insureesWithoutPhotos(ctx context.Context, _ *models.Principal, params map[string]string) (map[string]interface{}, error) {
	officerID, err := paramInt(params, "officerId", false)
	if err != nil {
		return nil, err
	}
	locationID, err := paramInt(params, "locationId", false)
	if err != nil {
		return nil, err
	}

	args := map[string]interface{}{}
	if officerID != nil {
		args["OfficerId"] = *officerID
	}
	if locationID != nil {
		args["LocationId"] = *locationID
	}
	rows, err := m.procs.Call(ctx, ProcInsureesWithoutPhotos, args)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"insurees": rows,
		"total":    len(rows),
	}, nil
}

func (m *InsureeModule) enrolledFamilies(ctx context.Context, _ *models.Principal, params map[string]string) (map[string]interface{}, error) {
	locationID, err := paramInt(params, "locationId", true)
	if err != nil {
		return nil, err
	}
	from, err := paramDate(params, "dateFrom", true)
	if err != nil {
		return nil, err
	}
	to, err := paramDate(params, "dateTo", true)
	if err != nil {
		return nil, err
	}

	rows, err := m.procs.Call(ctx, ProcEnrolledFamilies, map[string]interface{}{
		"LocationId": *locationID,
		"StartDate":  *from,
		"EndDate":    *to,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"families": rows,
		"dateFrom": formatDate(from),
		"dateTo":   formatDate(to),
	}, nil
}
