package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Staging is what Upsert needs from its connection. It must be a
// transaction: the staging table is created ON COMMIT DROP.
type Staging interface {
	Copier
	Execer
}

// UpsertConfig names the target table and its merge keys.
type UpsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	// UpdateCols are overwritten on conflict. Nil means every column that
	// is not a conflict key.
	UpdateCols []string
}

// Upsert stages rows in a temp table with COPY and merges them into the
// target with INSERT ... ON CONFLICT. It returns the rows affected.
func Upsert(ctx context.Context, tx Staging, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	staging := pgx.Identifier{stagingName(cfg.Table)}
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		staging.Sanitize(), sanitizeTable(cfg.Table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, staging, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into staging table for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(cfg, staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	return tag.RowsAffected(), nil
}

func mergeSQL(cfg UpsertConfig, staging pgx.Identifier) string {
	cols := quoteAndJoin(cfg.Columns)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) ",
		sanitizeTable(cfg.Table), cols, cols, staging.Sanitize(), quoteAndJoin(cfg.ConflictKeys))

	update := cfg.updateColumns()
	if len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, col := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{col}.Sanitize()
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", q, q)
	}
	return b.String()
}

func (cfg UpsertConfig) updateColumns() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	var out []string
	for _, c := range cfg.Columns {
		if !slices.Contains(cfg.ConflictKeys, c) {
			out = append(out, c)
		}
	}
	return out
}

func stagingName(table string) string {
	return "_stage_" + strings.ReplaceAll(table, ".", "_")
}
