package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/soil-etl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "soil-etl",
	Short: "Soil organic carbon normalization pipeline",
	Long: "Reads wide soil organic carbon records, expands encoded measurement instances, " +
		"normalizes dates and writes method, profile and profile-layer tables.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "soil-etl: load config")
		}
		if err := config.InitLogger(loaded.Log); err != nil {
			return eris.Wrap(err, "soil-etl: init logger")
		}
		cfg = loaded
		zap.L().Debug("config loaded", zap.String("command", cmd.Name()), zap.String("driver", cfg.Store.Driver))
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
