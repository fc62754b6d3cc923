package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Terminal.Timeout <= 0 {
		return errors.New("terminal.timeout must be > 0")
	}

	if !strings.HasPrefix(c.Bridge.URL, "ws://") && !strings.HasPrefix(c.Bridge.URL, "wss://") {
		return fmt.Errorf("bridge.url must be a ws:// or wss:// URL, got %q", c.Bridge.URL)
	}
	if (c.Bridge.KeyID == "") != (c.Bridge.PrivateKeyPath == "") {
		return errors.New("bridge.key_id and bridge.private_key_path must be set together")
	}
	if c.Bridge.PingTimeout <= c.Bridge.PingInterval {
		return fmt.Errorf("bridge.ping_timeout (%v) must exceed bridge.ping_interval (%v)",
			c.Bridge.PingTimeout, c.Bridge.PingInterval)
	}

	if c.Reconnect.Attempts < 1 {
		return errors.New("reconnect.attempts must be >= 1")
	}
	if c.Reconnect.Delay < 0 {
		return errors.New("reconnect.delay must be >= 0")
	}

	if c.Watchdog.Interval <= 0 {
		return errors.New("watchdog.interval must be > 0")
	}

	if c.Accounts.Default != "" && c.Accounts.File == "" {
		return errors.New("accounts.file is required when accounts.default is set")
	}

	if c.Journal.Enabled {
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
