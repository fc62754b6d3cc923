package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rickgao/mt5-session/internal/config"
	"github.com/rickgao/mt5-session/internal/session"
)

var (
	checkAccount string
	checkReport  string
	checkTimeout time.Duration
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Width(22)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect once, print session status and disconnect",
	Long: `Check opens the terminal with an account, prints the session status and
closes the terminal again. It exits non-zero if the login fails.

Use --report to also write a JSON diagnostics report. The report includes the
non-secret configuration snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := newLogger(os.Stderr, cfg.Log)

		sess, err := newSession(cfg, logger)
		if err != nil {
			return err
		}

		name := checkAccount
		if name == "" {
			name = cfg.Accounts.Default
		}
		if name == "" {
			return fmt.Errorf("no account given and accounts.default is empty")
		}

		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		loginErr := sess.SwitchTo(ctx, name, nil)

		st := sess.Status(ctx)
		renderStatus(cmd.OutOrStdout(), st, loginErr)

		if checkReport != "" {
			if err := writeReport(ctx, sess, cfg, checkReport); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Report written to "+checkReport))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		sess.Shutdown(shutdownCtx)

		return loginErr
	},
}

func init() {
	checkCmd.Flags().StringVarP(&checkAccount, "account", "a", "", "account to log in with (default: accounts.default)")
	checkCmd.Flags().StringVar(&checkReport, "report", "", "write a JSON diagnostics report to this file")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 2*time.Minute, "overall timeout for the check")
	rootCmd.AddCommand(checkCmd)
}

// renderStatus prints a human-readable status block.
func renderStatus(w io.Writer, st session.Status, loginErr error) {
	fmt.Fprintln(w, sectionStyle.Render("Session "+st.SessionID))
	fmt.Fprintln(w)

	row := func(label, value string) {
		fmt.Fprintln(w, labelStyle.Render(label)+value)
	}

	row("State", stateStyle(st.State).Render(st.State.String()))
	row("Terminal alive", fmt.Sprintf("%t", st.Alive))
	if st.Account != "" {
		row("Account", st.Account)
	}
	if st.Login != 0 {
		row("Login", fmt.Sprintf("%d@%s", st.Login, st.Server))
	}
	row("Auto-reconnect", fmt.Sprintf("%t (%d attempts, %s delay)", st.AutoReconnect, st.RetryAttempts, st.RetryDelay))

	s := st.Statistics
	row("Attempts", fmt.Sprintf("%d (%d ok, %d failed)", s.TotalAttempts, s.SuccessfulConnections, s.FailedConnections))
	row("Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate*100))
	if s.LastError != nil {
		row("Last error", fmt.Sprintf("[%d] %s", s.LastError.Code, s.LastError.Message))
	}

	if len(st.Terminal) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Terminal"))
		for _, k := range sortedKeys(st.Terminal) {
			row(k, fmt.Sprint(st.Terminal[k]))
		}
	}

	if loginErr != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, errorStyle.Render("Login failed: ")+loginErr.Error())
	}
}

func stateStyle(st session.State) lipgloss.Style {
	switch st {
	case session.Connected:
		return successStyle
	case session.Initializing, session.Reconnecting:
		return warningStyle
	default:
		return errorStyle
	}
}

// writeReport writes the session report with the config snapshot.
func writeReport(ctx context.Context, sess *session.Session, cfg *config.Config, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	snap := config.NewSnapshot(sess.Config(), snapshotExtras(cfg))
	if err := sess.WriteReport(ctx, f, snap); err != nil {
		return err
	}
	return f.Close()
}

// snapshotExtras lists the non-session settings worth recording.
func snapshotExtras(cfg *config.Config) map[string]any {
	return map[string]any{
		"bridge_url":       cfg.Bridge.URL,
		"default_account":  cfg.Accounts.Default,
		"watchdog_seconds": cfg.Watchdog.Interval.Seconds(),
		"journal_enabled":  cfg.Journal.Enabled,
	}
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
