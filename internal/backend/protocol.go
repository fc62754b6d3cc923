package backend

import (
	"encoding/json"
	"time"
)

// Bridge commands.
const (
	cmdInitialize   = "initialize"
	cmdLogin        = "login"
	cmdShutdown     = "shutdown"
	cmdTerminalInfo = "terminal_info"
	cmdLastError    = "last_error"
)

// Command is a request sent to the bridge.
type Command struct {
	ID     int64       `json:"id"`
	Cmd    string      `json:"cmd"`
	Params interface{} `json:"params,omitempty"`
}

// Response is the bridge's answer to a Command.
type Response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg"`
}

// InitializeParams are parameters for the initialize command.
type InitializeParams struct {
	Path      string `json:"path,omitempty"`
	TimeoutMs int64  `json:"timeout_ms"`
	Portable  bool   `json:"portable"`
}

// LoginParams are parameters for the login command.
type LoginParams struct {
	Login    int64  `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// ErrorMsg is the message content for an "error" response and for last_error.
type ErrorMsg struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TerminalInfoMsg is the message content for a terminal_info response.
// Fields other than connected are passed through as health info.
type TerminalInfoMsg struct {
	Connected bool `json:"connected"`
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	URL              string        // e.g. ws://127.0.0.1:8765/bridge/v1
	HandshakeTimeout time.Duration // Dial handshake timeout
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping interval
	PingTimeout      time.Duration // Max time without pong before the socket is stale
	CommandTimeout   time.Duration // Wait for a response when ctx has no deadline
}

// DefaultBridgeConfig returns sensible defaults.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      45 * time.Second,
		CommandTimeout:   10 * time.Second,
	}
}
