package accounts

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// accountFile is the on-disk layout of an accounts file.
type accountFile struct {
	Accounts []accountEntry `yaml:"accounts"`
}

type accountEntry struct {
	Name        string    `yaml:"name"`
	Login       int64     `yaml:"login"`
	Secret      string    `yaml:"secret,omitempty"`
	Server      string    `yaml:"server"`
	InstallPath string    `yaml:"install_path,omitempty"`
	SavedAt     time.Time `yaml:"saved_at,omitempty"`
}

// LoadFile merges the accounts in a YAML file into the store and returns
// how many were loaded. ${VAR} references are expanded from the environment.
func (s *Store) LoadFile(path string) (int, error) {
	return s.load(path, true)
}

// LoadFileRaw is LoadFile without environment expansion, for tools that
// rewrite the file.
func (s *Store) LoadFileRaw(path string) (int, error) {
	return s.load(path, false)
}

func (s *Store) load(path string, expand bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read accounts file: %w", err)
	}

	if expand {
		data = []byte(os.ExpandEnv(string(data)))
	}

	var f accountFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse accounts yaml: %w", err)
	}

	for i, e := range f.Accounts {
		if e.Name == "" {
			return 0, fmt.Errorf("accounts[%d].name is required", i)
		}
	}

	for _, e := range f.Accounts {
		savedAt := e.SavedAt
		if savedAt.IsZero() {
			savedAt = s.now()
		}
		s.put(Account{
			Name: e.Name,
			Credentials: Credentials{
				Login:       e.Login,
				Secret:      e.Secret,
				Server:      e.Server,
				InstallPath: e.InstallPath,
			},
			SavedAt: savedAt,
		})
	}

	s.logger.Info("accounts loaded", "path", path, "count", len(f.Accounts))
	return len(f.Accounts), nil
}

// SaveFile writes every account to a YAML file with 0600 permissions.
// Secrets are written only when withSecrets is true.
func (s *Store) SaveFile(path string, withSecrets bool) error {
	var f accountFile
	for _, acct := range s.Accounts() {
		e := accountEntry{
			Name:        acct.Name,
			Login:       acct.Credentials.Login,
			Server:      acct.Credentials.Server,
			InstallPath: acct.Credentials.InstallPath,
			SavedAt:     acct.SavedAt.UTC(),
		}
		if withSecrets {
			e.Secret = acct.Credentials.Secret
		}
		f.Accounts = append(f.Accounts, e)
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal accounts yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}

	s.logger.Info("accounts saved", "path", path, "count", len(f.Accounts))
	return nil
}
