package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTerminalTimeout  = 60 * time.Second
	DefaultBridgeURL        = "ws://127.0.0.1:8765/bridge/v1"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultPingTimeout      = 45 * time.Second
	DefaultCommandTimeout   = 10 * time.Second
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = 5 * time.Second
	DefaultWatchdogInterval = 10 * time.Second
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 1000
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultHealthPath       = "/healthz"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *Config) applyDefaults() {
	// Terminal defaults
	if c.Terminal.Timeout == 0 {
		c.Terminal.Timeout = DefaultTerminalTimeout
	}

	// Bridge defaults
	if c.Bridge.URL == "" {
		c.Bridge.URL = DefaultBridgeURL
	}
	if c.Bridge.HandshakeTimeout == 0 {
		c.Bridge.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Bridge.WriteTimeout == 0 {
		c.Bridge.WriteTimeout = DefaultWriteTimeout
	}
	if c.Bridge.PingInterval == 0 {
		c.Bridge.PingInterval = DefaultPingInterval
	}
	if c.Bridge.PingTimeout == 0 {
		c.Bridge.PingTimeout = DefaultPingTimeout
	}
	if c.Bridge.CommandTimeout == 0 {
		c.Bridge.CommandTimeout = DefaultCommandTimeout
	}

	// Reconnect defaults
	if c.Reconnect.Attempts == 0 {
		c.Reconnect.Attempts = DefaultRetryAttempts
	}
	if c.Reconnect.Delay == 0 {
		c.Reconnect.Delay = DefaultRetryDelay
	}

	if c.Watchdog.Interval == 0 {
		c.Watchdog.Interval = DefaultWatchdogInterval
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	applyDBDefaults(&c.Database)

	if c.Health.Path == "" {
		c.Health.Path = DefaultHealthPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
