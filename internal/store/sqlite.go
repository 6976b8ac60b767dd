package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/soil-etl/internal/model"
	"github.com/sells-group/soil-etl/internal/schema"
)

// SQLiteStore implements Sink using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode
// and turns on foreign key enforcement.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteRunsMigration = `
CREATE TABLE IF NOT EXISTS etl_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	report      TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_etl_runs_started_at ON etl_runs(started_at);
`

// Migrate runs the embedded output schema and the run history DDL.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema.DDL()); err != nil {
		return eris.Wrap(err, "sqlite: migrate schema")
	}
	_, err := s.db.ExecContext(ctx, sqliteRunsMigration)
	return eris.Wrap(err, "sqlite: migrate runs")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save replaces the contents of every frame's table inside one
// transaction. Old rows are deleted children first; new rows are inserted
// parents first.
func (s *SQLiteStore) Save(ctx context.Context, frames []model.Frame) (SaveResult, error) {
	log := zap.L().With(zap.String("component", "store.sqlite"))
	res := SaveResult{Tables: make(map[string]int64, len(frames))}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, f := range reverse(frames) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(f.Name)); err != nil {
			return res, eris.Wrapf(err, "sqlite: clear %s", f.Name)
		}
	}

	for _, f := range frames {
		n, err := insertFrame(ctx, tx, f)
		if err != nil {
			return res, err
		}
		res.Tables[f.Name] = n
		log.Info("table written", zap.String("table", f.Name), zap.Int64("rows", n))
	}

	if err := tx.Commit(); err != nil {
		return res, eris.Wrap(err, "sqlite: commit")
	}
	return res, nil
}

func insertFrame(ctx context.Context, tx *sql.Tx, f model.Frame) (int64, error) {
	if len(f.Rows) == 0 {
		return 0, nil
	}
	cols := make([]string, len(f.Columns))
	marks := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		cols[i] = quoteIdent(c)
		marks[i] = "?"
	}
	query := "INSERT INTO " + quoteIdent(f.Name) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert %s", f.Name)
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for i, row := range f.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return n, eris.Wrapf(err, "sqlite: insert %s row %d", f.Name, i+1)
		}
		n++
	}
	return n, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// StartRun records a run as running.
func (s *SQLiteStore) StartRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO etl_runs (id, status, started_at) VALUES (?, ?, ?)`,
		runID, string(RunStatusRunning), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: start run %s", runID)
}

// FinishRun stores the final status, report and error of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, report []byte, runErr error) error {
	var reportText sql.NullString
	if report != nil {
		reportText = sql.NullString{String: string(report), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE etl_runs SET status = ?, report = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), reportText, errString(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, report, error, started_at, finished_at FROM etl_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		var report, runErr sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Status, &report, &runErr, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if report.Valid {
			r.Report = []byte(report.String)
		}
		r.Error = runErr.String
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
