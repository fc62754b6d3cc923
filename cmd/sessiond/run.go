package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rickgao/mt5-session/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session daemon",
	Long: `Run opens the terminal with the default account, keeps it alive and
serves session health until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := newLogger(os.Stdout, cfg.Log)
		slog.SetDefault(logger)

		logger.Info("starting sessiond",
			"version", version.Version,
			"commit", version.Commit,
			"config", configPath,
		)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := newDaemon(ctx, cfg, logger)
		if err != nil {
			return err
		}

		if err := d.run(ctx); err != nil {
			return err
		}

		logger.Info("sessiond stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
