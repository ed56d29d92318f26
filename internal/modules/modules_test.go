package modules

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/report-api/internal/registry"
	"github.com/noah-isme/report-api/pkg/config"
	"github.com/noah-isme/report-api/pkg/engine"
	appErrors "github.com/noah-isme/report-api/pkg/errors"
)

type procedureStub struct {
	proc   string
	params map[string]interface{}
	rows   []map[string]interface{}
}

func (p *procedureStub) Call(ctx context.Context, proc string, params map[string]interface{}) ([]map[string]interface{}, error) {
	p.proc = proc
	p.params = params
	return p.rows, nil
}

func testPermissions() config.PermissionsConfig {
	return config.PermissionsConfig{
		EnrolledFamilies:        []string{"131215"},
		InsureesWithoutPhotos:   []string{"131210"},
		ClaimHistory:            []string{"131223"},
		ClaimOverview:           []string{"131213"},
		ContributionCollection:  []string{"131204"},
		PaymentCategoryOverview: []string{"131211"},
	}
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestInstalledModulesDiscover(t *testing.T) {
	reg, err := registry.Discover(context.Background(), Installed(Deps{Permissions: testPermissions()}), zap.NewNop())
	require.NoError(t, err)
	require.True(t, reg.Sealed())
	assert.Equal(t, 6, reg.Len())

	desc, ok := reg.Lookup("claim_history")
	require.True(t, ok)
	assert.Equal(t, "claim", desc.Module)
	assert.Equal(t, []string{"131223"}, desc.Permissions)
	assert.NotEmpty(t, desc.DefaultDefinition)

	desc, ok = reg.Lookup("enrolled_families")
	require.True(t, ok)
	assert.Equal(t, "insuree", desc.Module)
}

func TestDefaultDefinitionsRenderWithTestData(t *testing.T) {
	reg, err := registry.Discover(context.Background(), Installed(Deps{}), zap.NewNop())
	require.NoError(t, err)

	for _, desc := range reg.All() {
		desc := desc
		t.Run(desc.Name, func(t *testing.T) {
			def, err := engine.Parse([]byte(desc.DefaultDefinition))
			require.NoError(t, err)
			report := engine.New(def, nil, engine.Options{IsTestData: true})
			require.Empty(t, report.Errors())

			for _, format := range []string{engine.FormatPDF, engine.FormatXLSX} {
				var buf bytes.Buffer
				require.NoError(t, report.Generate(format, &buf))
				assert.NotZero(t, buf.Len())
			}
		})
	}
}

func TestInsureesWithoutPhotosCallsProcedure(t *testing.T) {
	procs := &procedureStub{rows: []map[string]interface{}{{"CHFID": "070707070"}}}
	m := &InsureeModule{procs: procs}

	data, err := m.insureesWithoutPhotos(context.Background(), nil, map[string]string{"officerId": "7"})
	require.NoError(t, err)
	assert.Equal(t, ProcInsureesWithoutPhotos, procs.proc)
	assert.Equal(t, map[string]interface{}{"OfficerId": int64(7)}, procs.params)
	assert.Equal(t, 1, data["total"])

	_, err = m.insureesWithoutPhotos(context.Background(), nil, map[string]string{"locationId": "abc"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEnrolledFamiliesRequiresPeriod(t *testing.T) {
	procs := &procedureStub{}
	m := &InsureeModule{procs: procs}

	_, err := m.enrolledFamilies(context.Background(), nil, map[string]string{"locationId": "1", "dateFrom": "2024-01-01"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	data, err := m.enrolledFamilies(context.Background(), nil, map[string]string{"locationId": "1", "dateFrom": "2024-01-01", "dateTo": "2024-06-30"})
	require.NoError(t, err)
	assert.Equal(t, ProcEnrolledFamilies, procs.proc)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), procs.params["EndDate"])
	assert.Equal(t, "2024-01-01", data["dateFrom"])
}

func TestClaimHistoryQueriesByInsuree(t *testing.T) {
	db, mock := newMockDB(t)
	m := &ClaimModule{db: db}

	rows := sqlmock.NewRows([]string{"claim_code", "date_claimed", "health_facility", "chf_id", "claimed", "approved", "status"}).
		AddRow("CL-1", "2024-02-01", "Rachla Dispensary", "070707070", 120.5, 100.0, int64(16)).
		AddRow("CL-2", "2024-01-10", "Rachla Dispensary", "070707070", 30.0, 0.0, int64(1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "tblClaim" c JOIN "tblInsuree" i`) + `.*` +
		regexp.QuoteMeta(`WHERE c."ValidityTo" IS NULL AND i."CHFID" = $1 AND c."DateClaimed" >= $2 ORDER BY c."DateClaimed" DESC`)).
		WithArgs("070707070", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(rows)

	data, err := m.claimHistory(context.Background(), nil, map[string]string{"chfId": "070707070", "dateFrom": "2024-01-01"})
	require.NoError(t, err)
	claims := data["claims"].([]map[string]interface{})
	require.Len(t, claims, 2)
	assert.Equal(t, "valuated", claims[0]["status"])
	assert.Equal(t, "rejected", claims[1]["status"])
	assert.Equal(t, "", data["dateTo"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimOverviewTotals(t *testing.T) {
	db, mock := newMockDB(t)
	m := &ClaimModule{db: db}

	rows := sqlmock.NewRows([]string{"claim_code", "date_claimed", "health_facility", "chf_id", "claimed", "approved", "status"}).
		AddRow("CL-1", "2024-02-01", "Rachla Dispensary", "070707070", "120.50", "100.00", int64(8)).
		AddRow("CL-2", "2024-02-03", "Rachla Dispensary", "070707071", "30.00", "25.00", int64(4))
	mock.ExpectQuery(regexp.QuoteMeta(`c."HFID" = $1`)).
		WithArgs(int64(3), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	data, err := m.claimOverview(context.Background(), nil, map[string]string{"hfId": "3", "dateFrom": "2024-01-01", "dateTo": "2024-12-31"})
	require.NoError(t, err)
	assert.Equal(t, 2, data["count"])
	assert.InDelta(t, 150.5, data["totalClaimed"], 0.001)
	assert.InDelta(t, 125.0, data["totalApproved"], 0.001)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = m.claimOverview(context.Background(), nil, map[string]string{"hfId": "3"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPaymentCategoryOverviewLabels(t *testing.T) {
	db, mock := newMockDB(t)
	m := &ContributionModule{db: db}

	rows := sqlmock.NewRows([]string{"pay_type", "payments", "amount"}).
		AddRow("C", int64(12), "60000.00").
		AddRow("X", int64(1), "10.00")
	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY p."PayType"`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	data, err := m.paymentCategories(context.Background(), nil, map[string]string{"dateFrom": "2024-01-01", "dateTo": "2024-12-31"})
	require.NoError(t, err)
	categories := data["categories"].([]map[string]interface{})
	require.Len(t, categories, 2)
	assert.Equal(t, "cash", categories[0]["pay_type"])
	assert.Equal(t, "X", categories[1]["pay_type"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContributionCollectionFiltersProduct(t *testing.T) {
	db, mock := newMockDB(t)
	m := &ContributionModule{db: db}

	rows := sqlmock.NewRows([]string{"pay_date", "product_code", "chf_id", "receipt", "pay_type", "amount"}).
		AddRow("2024-01-15", "BCUL0001", "070707070", "R-1", "M", 5000.0)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE prod."ProductCode" = $1 AND p."ValidityTo" IS NULL`)).
		WithArgs("BCUL0001", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	data, err := m.collection(context.Background(), nil, map[string]string{"productCode": "BCUL0001", "dateFrom": "2024-01-01", "dateTo": "2024-01-31"})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, data["total"])
	contributions := data["contributions"].([]map[string]interface{})
	assert.Equal(t, "mobile phone", contributions[0]["pay_type"])
	require.NoError(t, mock.ExpectationsWereMet())
}
