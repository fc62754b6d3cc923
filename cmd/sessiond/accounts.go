package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rickgao/mt5-session/internal/accounts"
)

var (
	addLogin       int64
	addServer      string
	addSecretEnv   string
	addInstallPath string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage saved accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openAccounts()
		if err != nil {
			return err
		}

		if store.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), warningStyle.Render("No saved accounts"))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, sectionStyle.Render("NAME")+"\t"+sectionStyle.Render("LOGIN")+"\t"+sectionStyle.Render("SAVED"))
		nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
		for _, acct := range store.Accounts() {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				nameStyle.Render(acct.Name),
				acct.Credentials.String(),
				acct.SavedAt.Local().Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Save an account to the accounts file",
	Long: `Add saves an account. The secret is stored as a ${VAR} reference to the
environment variable named by --secret-env and expanded when the file is
loaded, so the file itself holds no secret.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, path, err := openAccounts()
		if err != nil {
			return err
		}

		creds := accounts.Credentials{
			Login:       addLogin,
			Secret:      "${" + addSecretEnv + "}",
			Server:      addServer,
			InstallPath: addInstallPath,
		}
		if err := creds.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", args[0], err)
		}

		store.Save(args[0], creds)
		if err := saveAccountRefs(store, path); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Saved account "+args[0]+" ("+creds.String()+")"))
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a saved account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, path, err := openAccounts()
		if err != nil {
			return err
		}
		if !store.Remove(args[0]) {
			return fmt.Errorf("account %q not found", args[0])
		}
		if err := saveAccountRefs(store, path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Removed account "+args[0]))
		return nil
	},
}

func init() {
	accountsAddCmd.Flags().Int64Var(&addLogin, "login", 0, "account login number")
	accountsAddCmd.Flags().StringVar(&addServer, "server", "", "trade server name")
	accountsAddCmd.Flags().StringVar(&addSecretEnv, "secret-env", "", "environment variable holding the password")
	accountsAddCmd.Flags().StringVar(&addInstallPath, "install-path", "", "terminal install path override")
	accountsAddCmd.MarkFlagRequired("login")
	accountsAddCmd.MarkFlagRequired("server")
	accountsAddCmd.MarkFlagRequired("secret-env")

	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsRemoveCmd)
	rootCmd.AddCommand(accountsCmd)
}

// openAccounts loads the configured accounts file without expanding
// ${VAR} references, so they survive a rewrite.
func openAccounts() (*accounts.Store, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	if cfg.Accounts.File == "" {
		return nil, "", fmt.Errorf("accounts.file is not set in %s", configPath)
	}

	store := accounts.NewStore(slog.New(slog.DiscardHandler))
	if _, err := os.Stat(cfg.Accounts.File); os.IsNotExist(err) {
		return store, cfg.Accounts.File, nil
	}
	if _, err := store.LoadFileRaw(cfg.Accounts.File); err != nil {
		return nil, "", err
	}
	return store, cfg.Accounts.File, nil
}

// saveAccountRefs writes the store back. Secrets are kept because they are
// unexpanded references.
func saveAccountRefs(store *accounts.Store, path string) error {
	return store.SaveFile(path, true)
}
