package modules

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/report-api/internal/models"
	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/pkg/config"
)

// claimStatuses maps legacy claim status codes to labels.
var claimStatuses = map[int64]string{
	1:  "rejected",
	2:  "entered",
	4:  "checked",
	8:  "processed",
	16: "valuated",
}

// ClaimModule reports on submitted claims.
type ClaimModule struct {
	db    *sqlx.DB
	perms config.PermissionsConfig
}

func (m *ClaimModule) Name() string { return "claim" }

func (m *ClaimModule) Reports() registry.Contribution {
	return build(
		reportSpec{
			name:        "claim_history",
			description: "Claims of one insuree",
			fetch:       m.claimHistory,
			perms:       m.perms.ClaimHistory,
		},
		reportSpec{
			name:        "claim_overview",
			description: "Claims of a health facility over a period with totals",
			fetch:       m.claimOverview,
			perms:       m.perms.ClaimOverview,
		},
	)
}

func claimQuery() sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(
			`c."ClaimCode" AS claim_code`,
			`c."DateClaimed" AS date_claimed`,
			`hf."HFName" AS health_facility`,
			`i."CHFID" AS chf_id`,
			`c."Claimed" AS claimed`,
			`c."Approved" AS approved`,
			`c."ClaimStatus" AS status`,
		).
		From(`"tblClaim" c`).
		Join(`"tblInsuree" i ON i."InsureeID" = c."InsureeID"`).
		Join(`"tblHF" hf ON hf."HfID" = c."HFID"`).
		Where(sq.Eq{`c."ValidityTo"`: nil})
}

func withPeriod(q sq.SelectBuilder, params map[string]string, required bool) (sq.SelectBuilder, map[string]interface{}, error) {
	from, err := paramDate(params, "dateFrom", required)
	if err != nil {
		return q, nil, err
	}
	to, err := paramDate(params, "dateTo", required)
	if err != nil {
		return q, nil, err
	}
	if from != nil {
		q = q.Where(sq.GtOrEq{`c."DateClaimed"`: *from})
	}
	if to != nil {
		q = q.Where(sq.LtOrEq{`c."DateClaimed"`: *to})
	}
	return q, map[string]interface{}{"dateFrom": formatDate(from), "dateTo": formatDate(to)}, nil
}

func (m *ClaimModule) claimHistory(ctx context.Context, _ *models.Principal, params map[string]string) (map[string]interface{}, error) {
	chfID, err := paramString(params, "chfId", true)
	if err != nil {
		return nil, err
	}
	q, data, err := withPeriod(claimQuery().Where(sq.Eq{`i."CHFID"`: chfID}), params, false)
	if err != nil {
		return nil, err
	}
	claims, err := m.claims(ctx, q.OrderBy(`c."DateClaimed" DESC`))
	if err != nil {
		return nil, err
	}
	data["chfId"] = chfID
	data["claims"] = claims
	return data, nil
}

func (m *ClaimModule) claimOverview(ctx context.Context, _ *models.Principal, params map[string]string) (map[string]interface{}, error) {
	hfID, err := paramInt(params, "hfId", true)
	if err != nil {
		return nil, err
	}
	q, data, err := withPeriod(claimQuery().Where(sq.Eq{`c."HFID"`: *hfID}), params, true)
	if err != nil {
		return nil, err
	}
	claims, err := m.claims(ctx, q.OrderBy(`c."DateClaimed" ASC`, `c."ClaimCode" ASC`))
	if err != nil {
		return nil, err
	}

	var claimed, approved float64
	for _, c := range claims {
		claimed += toFloat(c["claimed"])
		approved += toFloat(c["approved"])
	}
	data["hfId"] = *hfID
	data["claims"] = claims
	data["count"] = len(claims)
	data["totalClaimed"] = claimed
	data["totalApproved"] = approved
	return data, nil
}

func (m *ClaimModule) claims(ctx context.Context, q sq.SelectBuilder) ([]map[string]interface{}, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim query: %w", err)
	}
	rows, err := queryMaps(ctx, m.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	for _, row := range rows {
		if code, ok := row["status"].(int64); ok {
			if label, known := claimStatuses[code]; known {
				row["status"] = label
			}
		}
	}
	return rows, nil
}
