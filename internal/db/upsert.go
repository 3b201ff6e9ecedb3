package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table (e.g., "menu_items")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns overwritten on conflict; nil = all non-conflict, non-preserved columns
	PreserveCols []string // columns set on conflict only when the stored value is NULL
	FillCols     []string // columns set on conflict only when the incoming value is not NULL
}

// UpsertResult counts rows by outcome.
type UpsertResult struct {
	Inserted int64
	Updated  int64
}

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
//  1. Creates a temp table shaped like the target
//  2. COPY rows into the temp table
//  3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE SET ...
//     with PreserveCols guarded by COALESCE so an existing value always wins
//  4. The temp table is dropped on commit
//
// Inserted and updated rows are told apart with the xmax system column.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}

	if len(cfg.Columns) == 0 {
		return res, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return res, eris.New("db: upsert: no conflict keys specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return res, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return res, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return res, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	out, err := tx.Query(ctx, buildUpsertSQL(cfg, tempTable))
	if err != nil {
		return res, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	for out.Next() {
		var inserted bool
		if err := out.Scan(&inserted); err != nil {
			out.Close()
			return res, eris.Wrapf(err, "db: upsert: scan outcome for %s", cfg.Table)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	out.Close()
	if err := out.Err(); err != nil {
		return res, eris.Wrapf(err, "db: upsert: iterate outcome for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, eris.Wrap(err, "db: upsert: commit tx")
	}

	return res, nil
}

func buildUpsertSQL(cfg UpsertConfig, tempTable string) string {
	skip := make(map[string]bool, len(cfg.ConflictKeys)+len(cfg.PreserveCols)+len(cfg.FillCols))
	for _, group := range [][]string{cfg.ConflictKeys, cfg.PreserveCols, cfg.FillCols} {
		for _, k := range group {
			skip[k] = true
		}
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		for _, c := range cfg.Columns {
			if !skip[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	target := sanitizeTable(cfg.Table)
	var setClauses []string
	for _, col := range updateCols {
		id := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	for _, col := range cfg.PreserveCols {
		id := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = COALESCE(%s.%s, EXCLUDED.%s)", id, target, id, id))
	}
	for _, col := range cfg.FillCols {
		id := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", id, id, target, id))
	}

	colList := quoteAndJoin(cfg.Columns)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0) AS inserted",
		target,
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(setClauses, ", "),
	)
}

// sanitizeTable handles schema-qualified table names like "public.menu_items".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
