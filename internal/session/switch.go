package session

import (
	"context"
	"fmt"

	"github.com/rickgao/mt5-session/internal/events"
)

// SwitchTo reauthenticates as the named account. Stored credentials take
// precedence over inline ones; inline credentials for a new name are saved
// after a successful switch.
func (s *Session) SwitchTo(ctx context.Context, name string, inline *Credentials) error {
	creds, stored := s.accounts.Get(name)
	if !stored {
		if inline == nil {
			return fmt.Errorf("switch to %q: %w", name, ErrAccountNotFound)
		}
		creds = *inline
	}
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("switch to %q: %w: %w", name, ErrInvalidCredentials, err)
	}

	var out outbox
	s.opMu.Lock()
	s.bumpEpoch()
	err := s.reauthenticate(ctx, creds, manualAttempt, &out)
	if err == nil {
		s.mu.Lock()
		s.current = name
		s.mu.Unlock()
	}
	s.opMu.Unlock()

	out.flush(s.events)
	if err != nil {
		return fmt.Errorf("switch to %q: %w", name, err)
	}

	if !stored {
		s.accounts.Save(name, creds)
	}

	s.logger.Info("switched account", "account", name, "login", creds.Login)
	s.events.Publish(events.AccountSwitchContext{Account: name})
	return nil
}
