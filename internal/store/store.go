// Package store persists normalized tables and run history.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/soil-etl/internal/model"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Mode controls how Save treats rows already in the tables.
type Mode string

const (
	// ModeReplace empties the tables and writes the new rows.
	ModeReplace Mode = "replace"
	// ModeUpsert inserts new ids and overwrites existing ones.
	ModeUpsert Mode = "upsert"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded pipeline run.
type Run struct {
	ID         string          `json:"id"`
	Status     RunStatus       `json:"status"`
	Report     json.RawMessage `json:"report,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// SaveResult reports rows written per table.
type SaveResult struct {
	Tables map[string]int64
}

// Total is the number of rows written across all tables.
func (r SaveResult) Total() int64 {
	var n int64
	for _, v := range r.Tables {
		n += v
	}
	return n
}

// Sink is a destination for normalized tables.
type Sink interface {
	// Migrate creates the output tables and the run history table.
	Migrate(ctx context.Context) error
	// Save writes frames atomically. Frames must come in foreign-key
	// dependency order.
	Save(ctx context.Context, frames []model.Frame) (SaveResult, error)

	StartRun(ctx context.Context, runID string) error
	FinishRun(ctx context.Context, runID string, status RunStatus, report []byte, runErr error) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Close() error
}

// Options selects and configures a sink.
type Options struct {
	Driver      string
	DatabaseURL string
	Mode        Mode
	Pool        *PoolConfig
}

// Open returns the sink for opts.Driver. DriverNone yields a nil Sink.
func Open(ctx context.Context, opts Options) (Sink, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeReplace
	}
	if mode != ModeReplace && mode != ModeUpsert {
		return nil, eris.Errorf("store: unknown mode %q", opts.Mode)
	}

	switch opts.Driver {
	case DriverSQLite, "":
		if mode == ModeUpsert {
			return nil, eris.New("store: sqlite supports replace mode only")
		}
		s, err := NewSQLite(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(ctx, opts.DatabaseURL, mode, opts.Pool)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverNone:
		return nil, nil
	}
	return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func reverse(frames []model.Frame) []model.Frame {
	out := make([]model.Frame, len(frames))
	for i, f := range frames {
		out[len(frames)-1-i] = f
	}
	return out
}
