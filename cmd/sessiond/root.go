package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/mt5-session/internal/config"
	"github.com/rickgao/mt5-session/internal/session"
	"github.com/rickgao/mt5-session/internal/version"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	snapshotPath string
)

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "Terminal session lifecycle manager",
	Long: `sessiond keeps a trading terminal logged in.

It opens the terminal through a local bridge, authenticates a saved account,
probes liveness on an interval and reconnects when the terminal drops.
Session events can be journaled to PostgreSQL/TimescaleDB.

Quick Start:
  sessiond run --config configs/sessiond.yaml     # Run the daemon
  sessiond check --account demo                   # One-shot connect and status
  sessiond accounts list                          # Show saved accounts`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/sessiond.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "snapshot", "", "apply a saved settings snapshot over the config file")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig loads and validates the config file, then applies the log
// flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// sessionSettings returns the session settings from cfg with the snapshot
// at path, if any, applied on top.
func sessionSettings(cfg *config.Config, path string) (session.Config, error) {
	sc := cfg.SessionConfig()
	if path == "" {
		return sc, nil
	}

	snap, err := config.LoadSnapshot(path)
	if err != nil {
		return session.Config{}, err
	}
	if err := snap.Apply(&sc); err != nil {
		return session.Config{}, fmt.Errorf("apply snapshot %s: %w", path, err)
	}
	return sc, nil
}
