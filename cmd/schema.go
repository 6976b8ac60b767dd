package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/soil-etl/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the output schema DDL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dialect, _ := cmd.Flags().GetString("dialect")
		out, err := renderSchema(dialect)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, out)
		return nil
	},
}

func renderSchema(dialect string) (string, error) {
	switch dialect {
	case "", "sqlite":
		return schema.DDL(), nil
	case "postgres":
		s, err := schema.Default()
		if err != nil {
			return "", eris.Wrap(err, "parse schema")
		}
		return s.Render(schema.Postgres), nil
	}
	return "", eris.Errorf("unknown dialect %q (want sqlite or postgres)", dialect)
}

func init() {
	schemaCmd.Flags().String("dialect", "sqlite", "DDL dialect: sqlite or postgres")
	rootCmd.AddCommand(schemaCmd)
}
