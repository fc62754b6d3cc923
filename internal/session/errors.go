package session

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrConnect            = errors.New("connect failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrNoCredentials      = errors.New("no credentials on record")
)

// codeLocal is the error code used for failures raised by the session itself
// rather than reported by the terminal.
const codeLocal = 0

// ConnectError is returned when the terminal rejects an open or authenticate.
type ConnectError struct {
	Op      string // "open" or "authenticate"
	Code    int
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s failed: terminal error %d: %s", e.Op, e.Code, e.Message)
}

func (e *ConnectError) Is(target error) bool {
	return target == ErrConnect
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
