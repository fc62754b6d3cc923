package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rickgao/mt5-session/internal/stats"
)

// Status is a point-in-time view of the session for reporting.
type Status struct {
	SessionID     string           `json:"session_id"`
	State         State            `json:"state"`
	Alive         bool             `json:"alive"`
	Account       string           `json:"account,omitempty"`
	Login         int64            `json:"login,omitempty"`
	Server        string           `json:"server,omitempty"`
	AutoReconnect bool             `json:"auto_reconnect"`
	RetryAttempts int              `json:"retry_attempts"`
	RetryDelay    string           `json:"retry_delay"`
	Reconnecting  bool             `json:"reconnect_in_progress"`
	Terminal      map[string]any   `json:"terminal,omitempty"`
	Statistics    stats.Statistics `json:"statistics"`
}

// Status gathers the session state and terminal health. Unlike IsAlive it
// never changes state.
func (s *Session) Status(ctx context.Context) Status {
	health := s.handle.HealthCheck(ctx)

	s.mu.RLock()
	st := Status{
		SessionID:     s.id,
		State:         s.state,
		Alive:         health.Alive,
		Account:       s.current,
		AutoReconnect: s.cfg.AutoReconnect,
		RetryAttempts: s.cfg.RetryAttempts,
		RetryDelay:    s.cfg.RetryDelay.String(),
		Terminal:      health.Info,
	}
	if s.hasCreds {
		st.Login = s.creds.Login
		st.Server = s.creds.Server
	}
	s.mu.RUnlock()

	st.Reconnecting = s.inFlight.Load()
	st.Statistics = s.stats.Snapshot()
	return st
}

// Report is the document written by WriteReport.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Status      Status         `json:"status"`
	Accounts    []string       `json:"saved_accounts"`
	Config      map[string]any `json:"config,omitempty"`
}

// WriteReport writes a JSON diagnostics report to w. config is an optional
// flat settings snapshot; it must not contain secrets.
func (s *Session) WriteReport(ctx context.Context, w io.Writer, config map[string]any) error {
	report := Report{
		GeneratedAt: s.now().UTC(),
		Status:      s.Status(ctx),
		Accounts:    s.accounts.List(),
		Config:      config,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
