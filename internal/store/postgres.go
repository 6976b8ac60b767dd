package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/db"
	"github.com/sells-group/soil-etl/internal/model"
	"github.com/sells-group/soil-etl/internal/resilience"
	"github.com/sells-group/soil-etl/internal/schema"
)

// migrationLockID serializes concurrent Migrate calls across processes.
const migrationLockID = 5318008

// PostgresStore implements Sink using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	mode    Mode
	schema  *schema.Schema
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, mode Mode, poolCfg *PoolConfig) (*PostgresStore, error) {
	if connString == "" {
		return nil, eris.New("postgres: database_url is required")
	}
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := resilience.Do(ctx, resilience.DefaultPolicy(), "postgres ping", pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s, err := newPostgresStore(pool, mode)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool, mode Mode) (*PostgresStore, error) {
	sch, err := schema.Default()
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeReplace
	}
	return &PostgresStore{pool: pool, mode: mode, schema: sch}, nil
}

const postgresRunsMigration = `
CREATE TABLE IF NOT EXISTS etl_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	report      JSONB,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_etl_runs_started_at ON etl_runs(started_at);
`

// Migrate creates the output tables and the run history table under an
// advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.postgres"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, s.schema.Render(schema.Postgres)); err != nil {
		return eris.Wrap(err, "postgres: migrate schema")
	}
	if _, err := s.pool.Exec(ctx, postgresRunsMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate runs")
	}
	log.Info("schema migrated")
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Save writes frames in one transaction. In replace mode the tables are
// truncated and refilled with COPY; in upsert mode rows are merged on id.
func (s *PostgresStore) Save(ctx context.Context, frames []model.Frame) (SaveResult, error) {
	log := zap.L().With(zap.String("component", "store.postgres"), zap.String("mode", string(s.mode)))
	res := SaveResult{Tables: make(map[string]int64, len(frames))}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.mode == ModeReplace {
		names := make([]string, len(frames))
		for i, f := range reverse(frames) {
			names[i] = f.Name
		}
		if err := db.Truncate(ctx, tx, names...); err != nil {
			return res, err
		}
	}

	for _, f := range frames {
		rows := s.pgRows(f)
		var n int64
		switch s.mode {
		case ModeUpsert:
			n, err = db.Upsert(ctx, tx, db.UpsertConfig{
				Table:        f.Name,
				Columns:      f.Columns,
				ConflictKeys: []string{"id"},
			}, rows)
		default:
			n, err = db.CopyFrom(ctx, tx, f.Name, f.Columns, rows)
		}
		if err != nil {
			return res, eris.Wrapf(err, "postgres: save %s", f.Name)
		}
		res.Tables[f.Name] = n
		log.Info("table written", zap.String("table", f.Name), zap.Int64("rows", n))
	}

	if err := tx.Commit(ctx); err != nil {
		return res, eris.Wrap(err, "postgres: commit")
	}
	return res, nil
}

// pgRows converts DATE cells held as YYYY-MM-DD strings into time.Time so
// the binary COPY protocol can encode them.
func (s *PostgresStore) pgRows(f model.Frame) [][]any {
	t, ok := s.schema.Table(f.Name)
	if !ok {
		return f.Rows
	}
	var dateCols []int
	for i, name := range f.Columns {
		if c, ok := t.Column(name); ok && (c.Type == schema.TypeDate || c.Type == schema.TypeDatetime) {
			dateCols = append(dateCols, i)
		}
	}
	if len(dateCols) == 0 {
		return f.Rows
	}

	out := make([][]any, len(f.Rows))
	for r, row := range f.Rows {
		cp := append([]any(nil), row...)
		for _, i := range dateCols {
			if str, ok := cp[i].(string); ok {
				if d, err := time.Parse("2006-01-02", str); err == nil {
					cp[i] = d
				} else {
					cp[i] = nil
				}
			}
		}
		out[r] = cp
	}
	return out
}

// StartRun records a run as running.
func (s *PostgresStore) StartRun(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO etl_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		runID, string(RunStatusRunning), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: start run %s", runID)
}

// FinishRun stores the final status, report and error of a run.
func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status RunStatus, report []byte, runErr error) error {
	var reportArg any
	if report != nil {
		reportArg = string(report)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE etl_runs SET status = $1, report = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), reportArg, errString(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, report, error, started_at, finished_at FROM etl_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var status string
		var report, runErr *string
		if err := rows.Scan(&r.ID, &status, &report, &runErr, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = RunStatus(status)
		if report != nil {
			r.Report = []byte(*report)
		}
		if runErr != nil {
			r.Error = *runErr
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
