package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/metrics"
	"github.com/sells-group/soil-etl/internal/pipeline"
	"github.com/sells-group/soil-etl/internal/source"
	"github.com/sells-group/soil-etl/internal/store"
)

// initStore opens the configured sink. It returns a nil sink for the none
// driver.
func initStore(ctx context.Context) (store.Sink, error) {
	return store.Open(ctx, store.Options{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Mode:        store.Mode(cfg.Store.Mode),
		Pool: &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
}

// bindInputFlags registers the input flags shared by normalize and inspect.
func bindInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("input", "", "path to the wide-record workbook or CSV (overrides input.path)")
	cmd.Flags().String("sheet", "", "worksheet name (overrides input.sheet)")
	cmd.Flags().Int("workers", 0, "expansion workers (overrides pipeline.workers)")
}

// applyInputFlags copies set flags over the loaded config.
func applyInputFlags(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetString("input"); v != "" {
		cfg.Input.Path = v
	}
	if v, _ := cmd.Flags().GetString("sheet"); v != "" {
		cfg.Input.Sheet = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		cfg.Pipeline.Workers = v
	}
}

func loadInput(ctx context.Context) (*source.Result, error) {
	res, err := source.Load(ctx, source.Options{
		Path:       cfg.Input.Path,
		Format:     source.Format(cfg.Input.Format),
		SheetName:  cfg.Input.Sheet,
		SheetIndex: cfg.Input.SheetIndex,
		Delimiter:  cfg.Input.Delimiter,
	})
	if err != nil {
		return nil, eris.Wrap(err, "load input")
	}
	return res, nil
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		Workers:    cfg.Pipeline.Workers,
		DateLayout: cfg.Pipeline.DateLayout,
	}
}

// exportMetrics writes and pushes metrics when configured. Export failures
// are logged and never fail the command.
func exportMetrics(ctx context.Context) {
	log := zap.L().With(zap.String("component", "metrics"))
	if path := cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warn("metrics textfile export failed", zap.Error(err))
		}
	}
	if url := cfg.Metrics.PushgatewayURL; url != "" {
		if err := metrics.Push(ctx, url, cfg.Metrics.Job); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
	}
}
