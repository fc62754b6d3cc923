package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rickgao/mt5-session/internal/backend"
	"github.com/rickgao/mt5-session/internal/events"
)

func TestOpen_Success(t *testing.T) {
	h := &fakeHandle{alive: true}
	s := newTestSession(h)
	log := recordEvents(s)

	if err := s.Open(context.Background(), demoCreds); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if s.State() != Connected {
		t.Errorf("State = %v, want %v", s.State(), Connected)
	}
	if log.count(events.Connect) != 1 {
		t.Errorf("connect events = %d, want 1", log.count(events.Connect))
	}

	st := s.Stats()
	if st.SuccessfulConnections != 1 || st.TotalAttempts != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.LastConnectionTime == nil {
		t.Error("LastConnectionTime not set while Connected")
	}

	creds, ok := s.Credentials()
	if !ok || creds != demoCreds {
		t.Errorf("Credentials = %v, %v; want %v", creds, ok, demoCreds)
	}

	ev, ok := log.last(events.Connect).(events.ConnectContext)
	if !ok || ev.Login != 555 || ev.Server != "Demo-1" {
		t.Errorf("connect payload = %+v", log.last(events.Connect))
	}
}

func TestOpen_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{name: "zero login", creds: Credentials{Login: 0, Secret: "x", Server: "Demo"}},
		{name: "negative login", creds: Credentials{Login: -1, Secret: "x", Server: "Demo"}},
		{name: "empty secret", creds: Credentials{Login: 1, Server: "Demo"}},
		{name: "empty server", creds: Credentials{Login: 1, Secret: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandle{}
			s := newTestSession(h)

			err := s.Open(context.Background(), tt.creds)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Open error = %v, want ErrInvalidCredentials", err)
			}
			if s.State() != Disconnected {
				t.Errorf("State = %v, want %v", s.State(), Disconnected)
			}
			if s.Stats().TotalAttempts != 0 {
				t.Errorf("TotalAttempts = %d, want 0", s.Stats().TotalAttempts)
			}
			if h.opens != 0 {
				t.Errorf("backend opened %d times", h.opens)
			}
		})
	}
}

func TestOpen_AuthenticateRejected(t *testing.T) {
	h := &fakeHandle{authErrs: []error{&backend.Error{Code: -6, Message: "Authorization failed"}}}
	s := newTestSession(h)
	log := recordEvents(s)

	err := s.Open(context.Background(), demoCreds)

	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Open error = %v, want *ConnectError", err)
	}
	if !errors.Is(err, ErrConnect) {
		t.Error("error does not match ErrConnect")
	}
	if ce.Op != "authenticate" || ce.Code != -6 || ce.Message != "Authorization failed" {
		t.Errorf("ConnectError = %+v", ce)
	}
	if s.State() != Failed {
		t.Errorf("State = %v, want %v", s.State(), Failed)
	}

	st := s.Stats()
	if st.FailedConnections != 1 || st.SuccessfulConnections != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.LastError == nil || st.LastError.Code != -6 {
		t.Errorf("LastError = %+v", st.LastError)
	}
	if log.count(events.Error) != 1 || log.count(events.Connect) != 0 {
		t.Errorf("events: error=%d connect=%d", log.count(events.Error), log.count(events.Connect))
	}
	if _, ok := s.Credentials(); ok {
		t.Error("failed credentials must not be retained")
	}
}

func TestOpen_FallsBackToLastError(t *testing.T) {
	h := &fakeHandle{
		openErr: errors.New("dial bridge: connection refused"),
		lastErr: backend.Error{Code: backend.CodeNoIPC, Message: "No IPC connection"},
	}
	s := newTestSession(h)

	err := s.Open(context.Background(), demoCreds)

	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Open error = %v, want *ConnectError", err)
	}
	if ce.Op != "open" || ce.Code != backend.CodeNoIPC || ce.Message != "No IPC connection" {
		t.Errorf("ConnectError = %+v", ce)
	}
	if h.auths != 0 {
		t.Errorf("Authenticate called %d times after failed open", h.auths)
	}
}

func TestOpen_InstallPathOverride(t *testing.T) {
	h := &fakeHandle{}
	cfg := DefaultConfig()
	cfg.Open.InstallPath = "/opt/default"
	cfg.Open.Portable = true
	s := New(h, cfg, nil, nil)

	creds := demoCreds
	creds.InstallPath = "/opt/custom"
	if err := s.Open(context.Background(), creds); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if h.lastOpts.InstallPath != "/opt/custom" || !h.lastOpts.Portable || h.lastOpts.Timeout != DefaultOpenTimeout {
		t.Errorf("OpenOptions = %+v", h.lastOpts)
	}
}

func TestOpen_AttemptsAddUp(t *testing.T) {
	rejected := &backend.Error{Code: -6, Message: "Authorization failed"}
	h := &fakeHandle{authErrs: []error{rejected, nil, rejected, rejected, nil}}
	s := newTestSession(h)

	for i := 0; i < 5; i++ {
		s.Open(context.Background(), demoCreds)

		st := s.Stats()
		if st.TotalAttempts != st.FailedConnections+st.SuccessfulConnections {
			t.Fatalf("after open %d: total %d != failed %d + successful %d",
				i+1, st.TotalAttempts, st.FailedConnections, st.SuccessfulConnections)
		}
	}

	st := s.Stats()
	if st.TotalAttempts != 5 || st.SuccessfulConnections != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestOpen_EventAfterTransition(t *testing.T) {
	s := newTestSession(&fakeHandle{})

	var seen State
	s.Events().Subscribe(events.Connect, func(events.Event) error {
		seen = s.State()
		return nil
	})

	if err := s.Open(context.Background(), demoCreds); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if seen != Connected {
		t.Errorf("state seen by connect handler = %v, want %v", seen, Connected)
	}
}

func TestOpen_HandlerMayCallSession(t *testing.T) {
	s := newTestSession(&fakeHandle{})

	s.Events().Subscribe(events.Connect, func(events.Event) error {
		return s.Close(context.Background())
	})

	if err := s.Open(context.Background(), demoCreds); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.State() != Disconnected {
		t.Errorf("State = %v, want %v", s.State(), Disconnected)
	}
}

func TestClose_Idempotent(t *testing.T) {
	h := &fakeHandle{closeErr: errors.New("already closed")}
	s := newTestSession(h)
	log := recordEvents(s)
	ctx := context.Background()

	if err := s.Open(ctx, demoCreds); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close #%d failed: %v", i+1, err)
		}
	}

	if s.State() != Disconnected {
		t.Errorf("State = %v, want %v", s.State(), Disconnected)
	}
	if log.count(events.Disconnect) != 2 {
		t.Errorf("disconnect events = %d, want 2", log.count(events.Disconnect))
	}
	if ev := log.last(events.Disconnect).(events.DisconnectContext); ev.Reason != ReasonClosed {
		t.Errorf("Reason = %q, want %q", ev.Reason, ReasonClosed)
	}
}

func TestIsAlive_Healthy(t *testing.T) {
	h := &fakeHandle{alive: true}
	s := newTestSession(h)
	log := recordEvents(s)

	s.Open(context.Background(), demoCreds)

	if !s.IsAlive(context.Background()) {
		t.Error("IsAlive = false, want true")
	}
	if s.State() != Connected {
		t.Errorf("State = %v, want %v", s.State(), Connected)
	}
	if log.count(events.Disconnect) != 0 {
		t.Error("unexpected disconnect event")
	}
}

func TestIsAlive_LostWithoutAutoReconnect(t *testing.T) {
	h := &fakeHandle{alive: true}
	s := newTestSession(h)
	log := recordEvents(s)
	ctx := context.Background()

	s.Open(ctx, demoCreds)
	h.set(func(f *fakeHandle) { f.alive = false })

	if s.IsAlive(ctx) {
		t.Error("IsAlive = true, want false")
	}
	if s.State() != Disconnected {
		t.Errorf("State = %v, want %v", s.State(), Disconnected)
	}
	if ev, ok := log.last(events.Disconnect).(events.DisconnectContext); !ok || ev.Reason != ReasonLost {
		t.Errorf("disconnect payload = %+v", log.last(events.Disconnect))
	}
	if s.Reconnecting() {
		t.Error("reconnection started with auto-reconnect disabled")
	}
	if h.authCount() != 1 {
		t.Errorf("Authenticate calls = %d, want 1", h.authCount())
	}

	// Already disconnected: no second disconnect event.
	s.IsAlive(ctx)
	if log.count(events.Disconnect) != 1 {
		t.Errorf("disconnect events = %d, want 1", log.count(events.Disconnect))
	}
}

func TestReauthenticate_ClosesFirst(t *testing.T) {
	h := &fakeHandle{closeErr: errors.New("terminal not running")}
	s := newTestSession(h)

	other := Credentials{Login: 777, Secret: "y", Server: "Live-2"}
	if err := s.Reauthenticate(context.Background(), other); err != nil {
		t.Fatalf("Reauthenticate failed: %v", err)
	}

	if h.closes != 1 {
		t.Errorf("Close calls = %d, want 1", h.closes)
	}
	if creds, _ := s.Credentials(); creds != other {
		t.Errorf("Credentials = %v, want %v", creds, other)
	}
	if s.State() != Connected {
		t.Errorf("State = %v, want %v", s.State(), Connected)
	}
}

func TestReset_AfterMixedAttempts(t *testing.T) {
	rejected := &backend.Error{Code: -6, Message: "Authorization failed"}
	h := &fakeHandle{authErrs: []error{rejected, rejected, nil}}
	s := newTestSession(h)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Open(ctx, demoCreds)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	st := s.Stats()
	if st.TotalAttempts != 0 || st.SuccessfulConnections != 0 || st.FailedConnections != 0 || st.ErrorCount != 0 {
		t.Errorf("counters not zeroed: %+v", st)
	}
	if st.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0", st.SuccessRate)
	}
	if st.LastError != nil || st.LastConnectionTime != nil {
		t.Errorf("LastError/LastConnectionTime not cleared: %+v", st)
	}
	if _, ok := s.Credentials(); ok {
		t.Error("credentials retained after Reset")
	}
	if s.State() != Disconnected {
		t.Errorf("State = %v, want %v", s.State(), Disconnected)
	}
}

func TestRecordError(t *testing.T) {
	s := newTestSession(&fakeHandle{})
	log := recordEvents(s)

	s.RecordError(10013, "Invalid request")

	st := s.Stats()
	if st.ErrorCount != 1 || st.LastError == nil || st.LastError.Code != 10013 {
		t.Errorf("stats = %+v", st)
	}
	ev, ok := log.last(events.Error).(events.ErrorContext)
	if !ok || ev.Code != 10013 || ev.Message != "Invalid request" {
		t.Errorf("error payload = %+v", log.last(events.Error))
	}
}

func TestAutoReconnectSetters(t *testing.T) {
	s := newTestSession(&fakeHandle{})

	s.EnableAutoReconnect(5, 0)
	cfg := s.Config()
	if !cfg.AutoReconnect || cfg.RetryAttempts != 5 {
		t.Errorf("Config = %+v", cfg)
	}

	s.SetRetryAttempts(7)
	s.SetRetryDelay(3)
	s.DisableAutoReconnect()

	cfg = s.Config()
	if cfg.AutoReconnect || cfg.RetryAttempts != 7 || cfg.RetryDelay != 3 {
		t.Errorf("Config = %+v", cfg)
	}
}

func TestWriteReport(t *testing.T) {
	h := &fakeHandle{alive: true}
	s := newTestSession(h)
	ctx := context.Background()

	creds := Credentials{Login: 555, Secret: "s3cr3t-value", Server: "Demo-1"}
	s.Accounts().Save("demo", creds)
	if err := s.SwitchTo(ctx, "demo", nil); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}

	var buf bytes.Buffer
	if err := s.WriteReport(ctx, &buf, map[string]any{"retry_attempts": 3}); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	if strings.Contains(buf.String(), creds.Secret) {
		t.Error("report contains the account secret")
	}

	var report Report
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status.State != Connected || report.Status.Account != "demo" || !report.Status.Alive {
		t.Errorf("Status = %+v", report.Status)
	}
	if report.Status.SessionID != s.ID() {
		t.Errorf("SessionID = %q, want %q", report.Status.SessionID, s.ID())
	}
	if len(report.Accounts) != 1 || report.Accounts[0] != "demo" {
		t.Errorf("Accounts = %v", report.Accounts)
	}
	if report.Status.Statistics.SuccessfulConnections != 1 {
		t.Errorf("Statistics = %+v", report.Status.Statistics)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "disconnected"},
		{Initializing, "initializing"},
		{Connected, "connected"},
		{Reconnecting, "reconnecting"},
		{Failed, "failed"},
		{State(42), "state(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}

	var st State
	if err := st.UnmarshalText([]byte("reconnecting")); err != nil || st != Reconnecting {
		t.Errorf("UnmarshalText = %v, %v", st, err)
	}
	if err := st.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown state")
	}
}
