package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/pipeline"
	"github.com/sells-group/soil-etl/internal/schema"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize the input and write the output tables",
	Long:  "Reads the input, runs expansion, deduplication, date normalization and table building, checks the schema contract, then replaces or upserts the tables in the configured store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyInputFlags(cmd)
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}

		in, err := loadInput(ctx)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		} else {
			zap.L().Warn("store driver is none, tables will not be saved")
		}

		res, err := pipeline.Execute(ctx, st, in.Records, pipelineOptions())
		defer exportMetrics(ctx)
		if err != nil {
			return runError(err)
		}

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			fmt.Fprint(os.Stdout, pipeline.FormatReport(res.Report))
		}
		return nil
	},
}

// runError separates output that breaks the table schema from input, store
// and cancellation failures.
func runError(err error) error {
	if schema.IsContractError(err) {
		zap.L().Error("normalized tables violate the output schema, nothing was saved", zap.Error(err))
		return eris.Wrap(err, "normalize: schema contract violated")
	}
	return eris.Wrap(err, "normalize")
}

func init() {
	bindInputFlags(normalizeCmd)
	normalizeCmd.Flags().Bool("quiet", false, "do not print the run report")
	rootCmd.AddCommand(normalizeCmd)
}
