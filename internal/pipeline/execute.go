package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/model"
	"github.com/sells-group/soil-etl/internal/resilience"
	"github.com/sells-group/soil-etl/internal/store"
)

// Execute runs the flow and saves the tables to sink, recording the run in
// the sink's run history. A nil sink skips persistence and history. The
// result is returned even when saving fails.
func Execute(ctx context.Context, sink store.Sink, records []model.WideRecord, opts Options) (*Result, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", opts.RunID))

	if sink == nil {
		return Run(ctx, records, opts)
	}

	if err := sink.StartRun(ctx, opts.RunID); err != nil {
		log.Warn("pipeline: failed to record run start", zap.Error(err))
	}

	res, err := Run(ctx, records, opts)
	if err == nil {
		err = res.Report.track(ctx, PhasePersist, func() error {
			saved, err := resilience.DoVal(ctx, resilience.DefaultPolicy(), "save tables",
				func(ctx context.Context) (store.SaveResult, error) {
					return sink.Save(ctx, res.Frames)
				})
			if err != nil {
				return eris.Wrap(err, "pipeline: save tables")
			}
			res.Report.Saved = saved.Tables
			return nil
		})
	}

	finish(ctx, sink, opts.RunID, res, err)
	return res, err
}

// finish stores the run outcome. It uses a fresh context so a cancelled run
// is still recorded.
func finish(ctx context.Context, sink store.Sink, runID string, res *Result, runErr error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID))

	status := store.RunStatusComplete
	if runErr != nil {
		status = store.RunStatusFailed
	}

	var report []byte
	if res != nil {
		b, err := res.Report.JSON()
		if err != nil {
			log.Warn("pipeline: encode report", zap.Error(err))
		}
		report = b
	}

	if err := sink.FinishRun(context.WithoutCancel(ctx), runID, status, report, runErr); err != nil {
		log.Warn("pipeline: failed to record run finish", zap.Error(err))
	}
}
