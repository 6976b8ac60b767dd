// Package pipeline runs the normalization flow: expand wide records into
// instance rows, deduplicate, reformat dates, deduplicate again on the
// canonical date, build the three output tables and check them against
// the schema contract.
package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/dates"
	"github.com/sells-group/soil-etl/internal/dedupe"
	"github.com/sells-group/soil-etl/internal/expand"
	"github.com/sells-group/soil-etl/internal/metrics"
	"github.com/sells-group/soil-etl/internal/model"
	"github.com/sells-group/soil-etl/internal/normalize"
	"github.com/sells-group/soil-etl/internal/schema"
)

// Phase names, in execution order.
const (
	PhaseExpand      = "1_expand"
	PhaseDedupe      = "2_dedupe"
	PhaseDates       = "3_dates"
	PhaseDedupeDates = "4_dedupe_dates"
	PhaseNormalize   = "5_normalize"
	PhaseValidate    = "6_validate"
	PhasePersist     = "7_persist"
)

// Stage labels used for row metrics and duplicate counts.
const (
	StageInput       = "input"
	StageExpanded    = "expanded"
	StageReformatted = "reformatted"
)

// Options tunes a run.
type Options struct {
	// RunID identifies the run. A random UUID is used when empty.
	RunID      string
	Workers    int
	DateLayout string
	// Schema is the output contract. The embedded schema is used when nil.
	Schema *schema.Schema
}

// Result is the output of Run.
type Result struct {
	Tables *model.Tables
	// Frames are the tables flattened and coerced to the schema types, in
	// foreign-key dependency order.
	Frames []model.Frame
	// Rows are the deduplicated instance rows the tables were built from.
	Rows   []model.ExpandedRow
	Report *Report
}

// Run executes the flow over records. Only a cancelled context or a schema
// contract violation returns an error; every row-level problem is recovered
// and counted in the report.
func Run(ctx context.Context, records []model.WideRecord, opts Options) (*Result, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID))

	s := opts.Schema
	if s == nil {
		var err error
		if s, err = schema.Default(); err != nil {
			return nil, eris.Wrap(err, "pipeline: load schema")
		}
	}

	rep := newReport(runID)
	rep.Records = len(records)
	metrics.AddRows(StageInput, len(records))
	log.Info("pipeline: starting", zap.Int("records", len(records)))

	res := &Result{Report: rep}

	var rows []model.ExpandedRow
	err := rep.track(ctx, PhaseExpand, func() error {
		var stats expand.Stats
		var err error
		rows, stats, err = expand.All(ctx, records, opts.Workers)
		if err != nil {
			return err
		}
		rep.ExpandedRows = stats.Rows
		rep.DroppedRecords = stats.Empty
		metrics.AddRows(StageExpanded, stats.Rows)
		if stats.Empty > 0 {
			log.Warn("pipeline: records produced no instance rows",
				zap.Int("dropped_records", stats.Empty),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = rep.track(ctx, PhaseDedupe, func() error {
		before := len(rows)
		rows = dedupe.Rows(rows, nil, StageExpanded)
		rep.Duplicates[StageExpanded] = before - len(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = rep.track(ctx, PhaseDates, func() error {
		stats := dates.New(opts.DateLayout).Reformat(rows, model.ColDateForInstance)
		rep.NullDates = stats.Nulls()
		rep.PlaceholderDates = stats.Placeholder
		rep.UnparsableDates = stats.Unparsable
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = rep.track(ctx, PhaseDedupeDates, func() error {
		before := len(rows)
		rows = dedupe.Rows(rows, canonicalDateKeys(rows), StageReformatted)
		rep.Duplicates[StageReformatted] = before - len(rows)
		rep.Rows = len(rows)
		metrics.AddRows(StageReformatted, len(rows))
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Rows = rows

	err = rep.track(ctx, PhaseNormalize, func() error {
		tables, stats := normalize.Tables(rows)
		res.Tables = tables
		rep.MethodEntries = stats.MethodEntries
		rep.Duplicates[model.TableMethod] = stats.MethodEntries - len(tables.Methods)
		rep.Unresolved[normalize.KeyProfile] = stats.UnresolvedProfiles
		rep.Unresolved[normalize.KeyMethod] = stats.UnresolvedMethods
		rep.AmbiguousProfiles = stats.AmbiguousProfiles
		rep.Tables[model.TableMethod] = len(tables.Methods)
		rep.Tables[model.TableProfile] = len(tables.Profiles)
		rep.Tables[model.TableProfileLayer] = len(tables.ProfileLayers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = rep.track(ctx, PhaseValidate, func() error {
		frames := res.Tables.Frames()
		if err := schema.Validate(s, frames); err != nil {
			return eris.Wrap(err, "pipeline: schema contract")
		}
		res.Frames, rep.Coerced = schema.CoerceFrames(s, frames)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("pipeline: complete",
		zap.Int("records", rep.Records),
		zap.Int("rows", rep.Rows),
		zap.Int("dropped_records", rep.DroppedRecords),
		zap.Int64("duration_ms", rep.DurationMS()),
	)
	return res, nil
}

// canonicalDateKeys compares every column except the raw per-instance date,
// so rows that differ only in how the same date was written collapse.
func canonicalDateKeys(rows []model.ExpandedRow) []string {
	if len(rows) == 0 {
		return nil
	}
	return slices.DeleteFunc(rows[0].ColumnNames(), func(c string) bool {
		return c == model.ColDateForInstance
	})
}

// track runs fn as a named phase, recording its status and duration.
// A cancelled context fails the phase before fn runs.
func (r *Report) track(ctx context.Context, name string, fn func() error) error {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", r.RunID))

	start := time.Now()
	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = eris.Wrapf(ctxErr, "pipeline: %s cancelled", name)
	} else {
		err = fn()
	}
	d := time.Since(start)
	metrics.ObserveStep(name, d)

	phase := Phase{Name: name, Status: PhaseComplete, DurationMS: d.Milliseconds()}
	if err != nil {
		phase.Status = PhaseFailed
		phase.Error = err.Error()
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", phase.DurationMS),
			zap.Error(err),
		)
	} else {
		log.Debug("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", phase.DurationMS),
		)
	}
	r.Phases = append(r.Phases, phase)
	return err
}
