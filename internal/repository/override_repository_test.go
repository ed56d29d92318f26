package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/report-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func overrideRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "engine", "definition", "validity_from", "validity_to", "audit_user_id"})
}

func TestOverrideRepositoryReplaceClosesOpenRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	openFrom := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newFrom := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	user := "admin"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1 AND validity_to IS NULL FOR UPDATE")).
		WithArgs("R").
		WillReturnRows(overrideRows().AddRow("old-id", "R", 0, "{}", openFrom, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_definitions SET validity_to = $1 WHERE id = $2")).
		WithArgs(newFrom, "old-id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_definitions")).
		WithArgs(sqlmock.AnyArg(), "R", models.EngineReportBro, `{"docElements":[]}`, newFrom, nil, &user).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	row := &models.DefinitionOverride{Name: "R", Definition: `{"docElements":[]}`, ValidityFrom: newFrom, AuditUserID: &user}
	closed, err := repo.Replace(context.Background(), row)
	require.NoError(t, err)
	require.NotEmpty(t, row.ID)
	require.NotNil(t, closed)
	require.Equal(t, newFrom, *closed.ValidityTo)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideRepositoryReplaceFirstVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("R").
		WillReturnRows(overrideRows())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_definitions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	closed, err := repo.Replace(context.Background(), &models.DefinitionOverride{Name: "R", Definition: "{}"})
	require.NoError(t, err)
	require.Nil(t, closed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideRepositoryReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(overrideRows().AddRow("old-id", "R", 0, "{}", from, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_definitions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_definitions")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Replace(context.Background(), &models.DefinitionOverride{Name: "R", Definition: "{}", ValidityFrom: from.AddDate(1, 0, 0)})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideRepositoryReplaceRejectsEarlierStart(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	from := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(overrideRows().AddRow("old-id", "R", 0, "{}", from, nil, nil))
	mock.ExpectRollback()

	_, err := repo.Replace(context.Background(), &models.DefinitionOverride{Name: "R", Definition: "{}", ValidityFrom: from.AddDate(-1, 0, 0)})
	require.ErrorIs(t, err, ErrValidityOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideRepositoryActiveAt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	asOf := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("validity_from <= $2 AND (validity_to IS NULL OR validity_to > $2)")).
		WithArgs("R", asOf).
		WillReturnRows(overrideRows().AddRow("id-1", "R", 0, "first", from, to, nil))

	row, err := repo.ActiveAt(context.Background(), "R", asOf)
	require.NoError(t, err)
	require.Equal(t, "first", row.Definition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideRepositoryHistory(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1 ORDER BY validity_from ASC")).
		WithArgs("R").
		WillReturnRows(overrideRows().
			AddRow("id-1", "R", 0, "first", from, to, nil).
			AddRow("id-2", "R", 0, "second", to, nil, "admin"))

	rows, err := repo.History(context.Background(), "R")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.False(t, rows[0].Open())
	require.True(t, rows[1].Open())
	require.Equal(t, "admin", *rows[1].AuditUserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM report_definitions WHERE (name ILIKE $1 AND validity_to IS NULL)")).
		WithArgs("%claim%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_definitions WHERE (name ILIKE $1 AND validity_to IS NULL) ORDER BY name ASC, validity_from DESC LIMIT 20 OFFSET 0")).
		WithArgs("%claim%").
		WillReturnRows(overrideRows().AddRow("id-1", "claim_history", 0, "{}", time.Now(), nil, nil))

	rows, total, err := repo.List(context.Background(), models.DefinitionFilter{Search: "claim"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverrideRepositoryListWithHistory(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewOverrideRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM report_definitions WHERE (name = $1)")).
		WithArgs("R").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 5 OFFSET 5")).
		WithArgs("R").
		WillReturnRows(overrideRows())

	rows, total, err := repo.List(context.Background(), models.DefinitionFilter{Name: "R", ShowHistory: true, Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}
