package config

import (
	"time"

	"github.com/rickgao/mt5-session/internal/backend"
	"github.com/rickgao/mt5-session/internal/session"
)

// Config is the root configuration for a session daemon.
type Config struct {
	Terminal  TerminalConfig  `yaml:"terminal"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	Journal   JournalConfig   `yaml:"journal"`
	Database  DBConfig        `yaml:"database"`
	Health    HealthConfig    `yaml:"health"`
	Log       LogConfig       `yaml:"log"`
}

// TerminalConfig is passed through to the terminal on open.
type TerminalConfig struct {
	InstallPath string        `yaml:"install_path"`
	Timeout     time.Duration `yaml:"timeout"`
	Portable    bool          `yaml:"portable"`
}

// BridgeConfig holds the terminal bridge connection settings.
type BridgeConfig struct {
	URL              string        `yaml:"url"`
	KeyID            string        `yaml:"key_id"`           // Handshake key ID (X-Bridge-Key header)
	PrivateKeyPath   string        `yaml:"private_key_path"` // Path to RSA private key PEM file
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
}

// ReconnectConfig holds the automatic reconnection policy.
type ReconnectConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// WatchdogConfig holds liveness probe settings.
type WatchdogConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AccountsConfig points at the saved accounts file.
type AccountsConfig struct {
	File    string `yaml:"file"`
	Default string `yaml:"default"` // Account to switch to on startup
}

// JournalConfig holds event journal batch writer settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds the PostgreSQL/TimescaleDB connection for the journal.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings. Port 0 disables it.
type HealthConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SessionConfig converts the terminal and reconnect sections into session
// settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		AutoReconnect: c.Reconnect.Enabled,
		RetryAttempts: c.Reconnect.Attempts,
		RetryDelay:    c.Reconnect.Delay,
		Open: backend.OpenOptions{
			InstallPath: c.Terminal.InstallPath,
			Timeout:     c.Terminal.Timeout,
			Portable:    c.Terminal.Portable,
		},
	}
}

// BackendConfig converts the bridge section into bridge client settings.
func (c *Config) BackendConfig() backend.BridgeConfig {
	return backend.BridgeConfig{
		URL:              c.Bridge.URL,
		HandshakeTimeout: c.Bridge.HandshakeTimeout,
		WriteTimeout:     c.Bridge.WriteTimeout,
		PingInterval:     c.Bridge.PingInterval,
		PingTimeout:      c.Bridge.PingTimeout,
		CommandTimeout:   c.Bridge.CommandTimeout,
	}
}
