package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var companyCols = []string{"id", "session_id", "name", "name_key"}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestBulkInsert_EmptyRows(t *testing.T) {
	n, err := BulkInsert(context.Background(), nil, BulkConfig{
		Table:        "companies",
		Columns:      companyCols,
		ConflictKeys: []string{"session_id", "name_key"},
	}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkInsert_ConfigErrors(t *testing.T) {
	rows := [][]any{{"1", "s", "Acme", "acme"}}

	_, err := BulkInsert(context.Background(), nil, BulkConfig{Table: "companies", ConflictKeys: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkInsert(context.Background(), nil, BulkConfig{Table: "companies", Columns: companyCols}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkInsert_DoNothing(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_bulk_companies" \(LIKE "companies" INCLUDING DEFAULTS\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_bulk_companies"}, companyCols).WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "companies" .* ON CONFLICT \("session_id", "name_key"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	rows := [][]any{
		{"1", "s", "Acme", "acme"},
		{"2", "s", "ACME", "acme"},
		{"3", "s", "Globex", "globex"},
	}
	n, err := BulkInsert(context.Background(), mock, BulkConfig{
		Table:        "companies",
		Columns:      companyCols,
		ConflictKeys: []string{"session_id", "name_key"},
	}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkInsert_CopyError(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_bulk_companies"}, companyCols).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err := BulkInsert(context.Background(), mock, BulkConfig{
		Table:        "companies",
		Columns:      companyCols,
		ConflictKeys: []string{"session_id", "name_key"},
	}, [][]any{{"1", "s", "Acme", "acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for companies")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictAction(t *testing.T) {
	assert.Equal(t, "DO NOTHING", conflictAction(nil))
	assert.Equal(t, `DO UPDATE SET "website" = EXCLUDED."website"`, conflictAction([]string{"website"}))
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"companies"`, sanitizeTable("companies"))
	assert.Equal(t, `"public"."companies"`, sanitizeTable("public.companies"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
