package accounts

import (
	"errors"
	"fmt"
)

// Credentials is an immutable login for a trading account.
type Credentials struct {
	Login       int64
	Secret      string
	Server      string
	InstallPath string // Terminal install path override (empty = configured default)
}

// Validation errors.
var (
	ErrInvalidLogin  = errors.New("login must be > 0")
	ErrMissingSecret = errors.New("secret is required")
	ErrMissingServer = errors.New("server is required")
)

// Validate checks that the credentials can be sent to the backend.
func (c Credentials) Validate() error {
	if c.Login <= 0 {
		return ErrInvalidLogin
	}
	if c.Secret == "" {
		return ErrMissingSecret
	}
	if c.Server == "" {
		return ErrMissingServer
	}
	return nil
}

// String omits the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("%d@%s", c.Login, c.Server)
}
