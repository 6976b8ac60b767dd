package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/soil-etl/internal/model"
	"github.com/sells-group/soil-etl/internal/pipeline"
	"github.com/sells-group/soil-etl/internal/review"
	"github.com/sells-group/soil-etl/internal/source"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Run the pipeline without saving and print a review",
	Long:  "Runs the full pipeline in memory and prints the run report, column profiles, the encoding audit and data quality findings as YAML.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyInputFlags(cmd)
		if err := cfg.Validate("inspect"); err != nil {
			return err
		}

		in, err := loadInput(ctx)
		if err != nil {
			return err
		}
		return inspect(ctx, os.Stdout, in)
	},
}

// inspection is the YAML document printed by inspect.
type inspection struct {
	Run    *pipeline.Report `yaml:"run"`
	Issues map[string]int   `yaml:"decode_issues,omitempty"`
	Review review.Report    `yaml:"review"`
}

func inspect(ctx context.Context, w io.Writer, in *source.Result) error {
	res, err := pipeline.Run(ctx, in.Records, pipelineOptions())
	if err != nil {
		return eris.Wrap(err, "inspect")
	}

	rep := review.Report{
		Input:     review.Profile("input", in.Records, model.RequiredColumns),
		Encodings: review.AuditEncodings(in.Records),
		Quality:   review.Check(in.Records),
	}
	if len(res.Rows) > 0 {
		rep.Expanded = review.Profile("expanded", res.Rows, res.Rows[0].ColumnNames())
	} else {
		rep.Expanded = review.TableReview{Name: "expanded"}
	}
	for _, f := range res.Frames {
		rep.Tables = append(rep.Tables, review.ProfileFrame(f))
	}
	review.CheckDates(&rep.Quality, res.Rows, model.ColReformatDate, cfg.Pipeline.DateLayout)

	return review.Render(w, inspection{Run: res.Report, Issues: in.Issues, Review: rep})
}

func init() {
	bindInputFlags(inspectCmd)
	rootCmd.AddCommand(inspectCmd)
}
