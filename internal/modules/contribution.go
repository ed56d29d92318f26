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

var payTypes = map[string]string{
	"C": "cash",
	"B": "bank transfer",
	"M": "mobile phone",
	"F": "funding",
}

// ContributionModule reports on collected premiums.
type ContributionModule struct {
	db    *sqlx.DB
	perms config.PermissionsConfig
}

func (m *ContributionModule) Name() string { return "contribution" }

func (m *ContributionModule) Reports() registry.Contribution {
	return build(
		reportSpec{
			name:        "contribution_collection",
			description: "Contributions paid over a period, optionally for one product",
			fetch:       m.collection,
			perms:       m.perms.ContributionCollection,
		},
		reportSpec{
			name:        "payment_category_overview",
			description: "Contributions over a period grouped by payment type",
			fetch:       m.paymentCategories,
			perms:       m.perms.PaymentCategoryOverview,
		},
	)
}

func premiumPeriod(q sq.SelectBuilder, params map[string]string) (sq.SelectBuilder, map[string]interface{}, error) {
	from, err := paramDate(params, "dateFrom", true)
	if err != nil {
		return q, nil, err
	}
	to, err := paramDate(params, "dateTo", true)
	if err != nil {
		return q, nil, err
	}
	q = q.Where(sq.Eq{`p."ValidityTo"`: nil}).
		Where(sq.GtOrEq{`p."PayDate"`: *from}).
		Where(sq.LtOrEq{`p."PayDate"`: *to})
	return q, map[string]interface{}{"dateFrom": formatDate(from), "dateTo": formatDate(to)}, nil
}

func (m *ContributionModule) collection(ctx context.Context, _ *models.Principal, params map[string]string) (map[string]interface{}, error) {
	product, err := paramString(params, "productCode", false)
	if err != nil {
		return nil, err
	}
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(
			`p."PayDate" AS pay_date`,
			`prod."ProductCode" AS product_code`,
			`i."CHFID" AS chf_id`,
			`p."Receipt" AS receipt`,
			`p."PayType" AS pay_type`,
			`p."Amount" AS amount`,
		).
		From(`"tblPremium" p`).
		Join(`"tblPolicy" pol ON pol."PolicyID" = p."PolicyID"`).
		Join(`"tblProduct" prod ON prod."ProdID" = pol."ProdID"`).
		Join(`"tblFamilies" f ON f."FamilyID" = pol."FamilyID"`).
		Join(`"tblInsuree" i ON i."InsureeID" = f."InsureeID"`)
	if product != "" {
		q = q.Where(sq.Eq{`prod."ProductCode"`: product})
	}
	q, data, err := premiumPeriod(q, params)
	if err != nil {
		return nil, err
	}

	rows, err := m.query(ctx, q.OrderBy(`p."PayDate" ASC`))
	if err != nil {
		return nil, err
	}
	var total float64
	for _, row := range rows {
		total += toFloat(row["amount"])
		row["pay_type"] = payTypeLabel(row["pay_type"])
	}
	data["productCode"] = product
	data["contributions"] = rows
	data["total"] = total
	return data, nil
}

func (m *ContributionModule) paymentCategories(ctx context.Context, _ *models.Principal, params map[string]string) (map[string]interface{}, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(`p."PayType" AS pay_type`, `COUNT(*) AS payments`, `SUM(p."Amount") AS amount`).
		From(`"tblPremium" p`)
	q, data, err := premiumPeriod(q, params)
	if err != nil {
		return nil, err
	}

	rows, err := m.query(ctx, q.GroupBy(`p."PayType"`).OrderBy(`p."PayType" ASC`))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		row["pay_type"] = payTypeLabel(row["pay_type"])
	}
	data["categories"] = rows
	return data, nil
}

func (m *ContributionModule) query(ctx context.Context, q sq.SelectBuilder) ([]map[string]interface{}, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build contribution query: %w", err)
	}
	rows, err := queryMaps(ctx, m.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	return rows, nil
}

func payTypeLabel(v interface{}) interface{} {
	code, ok := v.(string)
	if !ok {
		return v
	}
	if label, known := payTypes[code]; known {
		return label
	}
	return code
}
