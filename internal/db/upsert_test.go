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

var menuCfg = UpsertConfig{
	Table:        "menu_items",
	Columns:      []string{"brand_id", "name", "calories", "default_price"},
	ConflictKeys: []string{"brand_id", "name"},
	PreserveCols: []string{"default_price"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	res, err := BulkUpsert(context.Background(), nil, menuCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, UpsertResult{}, res)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "menu_items",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "menu_items",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_CountsInsertedAndUpdated(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_menu_items"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_menu_items"}, menuCfg.Columns).WillReturnResult(2)
	mock.ExpectQuery(`COALESCE\("menu_items"\."default_price", EXCLUDED\."default_price"\)`).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true).AddRow(false))
	mock.ExpectCommit()

	rows := [][]any{{"b1", "Big Mac", 590, nil}, {"b1", "McChicken", 400, 3.49}}
	res, err := BulkUpsert(context.Background(), mock, menuCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Inserted)
	assert.Equal(t, int64(1), res.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_menu_items"}, menuCfg.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, menuCfg, [][]any{{"b1", "Fries", 320, nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for menu_items")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildUpsertSQL(t *testing.T) {
	sql := buildUpsertSQL(menuCfg, "_tmp")
	assert.Contains(t, sql, `ON CONFLICT ("brand_id", "name")`)
	assert.Contains(t, sql, `"calories" = EXCLUDED."calories"`)
	assert.Contains(t, sql, `"default_price" = COALESCE("menu_items"."default_price", EXCLUDED."default_price")`)
	assert.NotContains(t, sql, `"default_price" = EXCLUDED."default_price"`)
	assert.Contains(t, sql, "RETURNING (xmax = 0) AS inserted")
}

func TestBuildUpsertSQL_FillCols(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "menu_items",
		Columns:      []string{"id", "brand_id", "name", "calories", "default_price"},
		ConflictKeys: []string{"brand_id", "name"},
		FillCols:     []string{"default_price"},
	}
	sql := buildUpsertSQL(cfg, "_tmp")
	assert.Contains(t, sql, `"default_price" = COALESCE(EXCLUDED."default_price", "menu_items"."default_price")`)
	assert.Contains(t, sql, `"calories" = EXCLUDED."calories"`)
	assert.NotContains(t, sql, `"default_price" = EXCLUDED."default_price"`)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"public.menu_items", `"public"."menu_items"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
