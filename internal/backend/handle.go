package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Terminal error codes reported by the bridge for local failures.
const (
	CodeOK         = 1
	CodeNoIPC      = -10004 // no connection to the terminal process
	CodeIPCTimeout = -10005 // terminal did not answer in time
)

// Errors
var (
	ErrNotConnected    = errors.New("bridge not connected")
	ErrStaleConnection = errors.New("bridge connection stale (no pong)")
	ErrTimeout         = errors.New("bridge command timeout")
)

// Error is a failure reported by the terminal as a (code, message) pair.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("terminal error %d: %s", e.Code, e.Message)
}

// OpenOptions are passed through to the terminal when opening it.
type OpenOptions struct {
	InstallPath string        // Terminal executable (empty = terminal default)
	Timeout     time.Duration // Passed to the terminal as timeout_ms
	Portable    bool
}

// Health is the result of a terminal health check.
type Health struct {
	Alive bool
	Info  map[string]any // Terminal attributes, if reported
}

// Handle is an opaque connection to the trading terminal.
type Handle interface {
	// Open starts or attaches to the terminal.
	Open(ctx context.Context, opts OpenOptions) error

	// Authenticate logs in to a trading account.
	Authenticate(ctx context.Context, login int64, secret, server string) error

	// Close releases the terminal connection.
	Close(ctx context.Context) error

	// HealthCheck reports whether the terminal is connected to its server.
	HealthCheck(ctx context.Context) Health

	// LastError returns the terminal's most recent error.
	LastError(ctx context.Context) Error
}
