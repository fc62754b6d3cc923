package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rickgao/mt5-session/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and export configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the session settings snapshot",
	Long: `Show prints the session settings from the config file, with --snapshot
applied on top when given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		settings, err := sessionSettings(cfg, snapshotPath)
		if err != nil {
			return err
		}

		snap := config.NewSnapshot(settings, snapshotExtras(cfg))
		data, err := yaml.Marshal(map[string]any(snap))
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save PATH",
	Short: "Write the session settings snapshot to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		settings, err := sessionSettings(cfg, snapshotPath)
		if err != nil {
			return err
		}

		snap := config.NewSnapshot(settings, snapshotExtras(cfg))
		if err := config.SaveSnapshot(args[0], snap); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Snapshot written to "+args[0]))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(configPath+" is valid"))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSaveCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
