package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/mt5-session/internal/accounts"
	"github.com/rickgao/mt5-session/internal/backend"
	"github.com/rickgao/mt5-session/internal/events"
	"github.com/rickgao/mt5-session/internal/stats"
)

// Credentials identify a trading account.
type Credentials = accounts.Credentials

// Disconnect reasons.
const (
	ReasonClosed = "closed"
	ReasonLost   = "lost"
)

// Defaults
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 5 * time.Second
	DefaultOpenTimeout   = 60 * time.Second
)

// Config holds session behavior settings.
type Config struct {
	AutoReconnect bool
	RetryAttempts int
	RetryDelay    time.Duration
	Open          backend.OpenOptions
}

// DefaultConfig returns the session defaults. Auto-reconnect starts disabled.
func DefaultConfig() Config {
	return Config{
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
		Open:          backend.OpenOptions{Timeout: DefaultOpenTimeout},
	}
}

// Session manages one authenticated connection through a backend handle.
type Session struct {
	id       string
	handle   backend.Handle
	events   *events.Dispatcher
	stats    *stats.Recorder
	accounts *accounts.Store
	logger   *slog.Logger
	now      func() time.Time

	// opMu serializes Open, Close, Reauthenticate, SwitchTo and
	// reconnection attempts.
	opMu sync.Mutex

	mu       sync.RWMutex
	cfg      Config
	state    State
	creds    Credentials
	hasCreds bool
	current  string
	epoch    uint64 // bumped by every caller-initiated operation
	runDone  chan struct{}

	inFlight atomic.Bool

	bgCtx  context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Session around handle. store may be nil.
func New(handle backend.Handle, cfg Config, store *accounts.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = accounts.NewStore(logger)
	}

	id := uuid.NewString()
	logger = logger.With("session_id", id)
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:       id,
		handle:   handle,
		events:   events.NewDispatcher(logger),
		stats:    stats.NewRecorder(),
		accounts: store,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
		state:    Disconnected,
		bgCtx:    ctx,
		cancel:   cancel,
	}
}

// outbox collects events raised under opMu so they are published after it
// is released.
type outbox []events.Event

func (o *outbox) add(ev events.Event) { *o = append(*o, ev) }

func (o outbox) flush(d *events.Dispatcher) {
	for _, ev := range o {
		d.Publish(ev)
	}
}

// Open starts the terminal and logs in with creds.
func (s *Session) Open(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	var out outbox
	s.opMu.Lock()
	s.bumpEpoch()
	err := s.open(ctx, creds, manualAttempt, &out)
	s.opMu.Unlock()

	out.flush(s.events)
	return err
}

// attemptStates are the states an open runs in and falls back to.
type attemptStates struct {
	active State
	failed State
}

var (
	manualAttempt   = attemptStates{active: Initializing, failed: Failed}
	recoveryAttempt = attemptStates{active: Reconnecting, failed: Reconnecting}
)

// open must be called with opMu held.
func (s *Session) open(ctx context.Context, creds Credentials, st attemptStates, out *outbox) error {
	s.stats.RecordAttempt()
	s.setState(st.active)

	s.logger.Info("opening terminal session", "login", creds.Login, "server", creds.Server)

	if err := s.handle.Open(ctx, s.openOptions(creds)); err != nil {
		return s.fail(ctx, "open", err, st.failed, out)
	}
	if err := s.handle.Authenticate(ctx, creds.Login, creds.Secret, creds.Server); err != nil {
		return s.fail(ctx, "authenticate", err, st.failed, out)
	}

	at := s.now()
	s.stats.RecordSuccess(at)

	s.mu.Lock()
	s.state = Connected
	s.creds = creds
	s.hasCreds = true
	s.mu.Unlock()

	s.logger.Info("session connected", "login", creds.Login, "server", creds.Server)
	out.add(events.ConnectContext{Login: creds.Login, Server: creds.Server, At: at})
	return nil
}

// fail records a rejected open or authenticate. Must be called with opMu held.
func (s *Session) fail(ctx context.Context, op string, cause error, failed State, out *outbox) error {
	code, msg := s.terminalError(ctx, cause)

	s.setState(failed)
	s.stats.RecordFailure(code, msg)

	s.logger.Error("session "+op+" failed", "code", code, "message", msg)
	out.add(events.ErrorContext{Code: code, Message: msg})

	return &ConnectError{Op: op, Code: code, Message: msg, Err: cause}
}

// terminalError extracts (code, message) from cause, falling back to the
// terminal's last error.
func (s *Session) terminalError(ctx context.Context, cause error) (int, string) {
	var be *backend.Error
	if errors.As(cause, &be) {
		return be.Code, be.Message
	}

	le := s.handle.LastError(ctx)
	if le.Code == backend.CodeOK || le.Message == "" {
		return le.Code, cause.Error()
	}
	return le.Code, le.Message
}

func (s *Session) openOptions(creds Credentials) backend.OpenOptions {
	s.mu.RLock()
	opts := s.cfg.Open
	s.mu.RUnlock()

	if creds.InstallPath != "" {
		opts.InstallPath = creds.InstallPath
	}
	return opts
}

// Close releases the terminal and moves to Disconnected. It is safe to call
// repeatedly; each call publishes a disconnect event.
func (s *Session) Close(ctx context.Context) error {
	s.opMu.Lock()
	s.bumpEpoch()
	if err := s.handle.Close(ctx); err != nil {
		s.logger.Debug("terminal close failed", "error", err)
	}
	s.setState(Disconnected)
	s.opMu.Unlock()

	s.logger.Info("session closed")
	s.events.Publish(events.DisconnectContext{Reason: ReasonClosed})
	return nil
}

// IsAlive asks the terminal for its health. If the terminal is down while the
// session believes it is connected, the session moves to Disconnected and,
// with auto-reconnect enabled, starts a background reconnection. IsAlive
// returns the terminal's health without waiting for recovery.
func (s *Session) IsAlive(ctx context.Context) bool {
	health := s.handle.HealthCheck(ctx)
	if health.Alive {
		return true
	}

	s.mu.Lock()
	lost := s.state == Connected
	if lost {
		s.state = Disconnected
	}
	auto := s.cfg.AutoReconnect
	s.mu.Unlock()

	if !lost {
		return false
	}

	s.logger.Warn("terminal connection lost", "auto_reconnect", auto)
	s.events.Publish(events.DisconnectContext{Reason: ReasonLost})

	if auto {
		s.startReconnect()
	}
	return false
}

// Reauthenticate closes the terminal, ignoring errors, and opens it again
// with creds.
func (s *Session) Reauthenticate(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	var out outbox
	s.opMu.Lock()
	s.bumpEpoch()
	err := s.reauthenticate(ctx, creds, manualAttempt, &out)
	s.opMu.Unlock()

	out.flush(s.events)
	return err
}

// reauthenticate must be called with opMu held.
func (s *Session) reauthenticate(ctx context.Context, creds Credentials, st attemptStates, out *outbox) error {
	if err := s.handle.Close(ctx); err != nil {
		s.logger.Debug("terminal close before reauthenticate failed", "error", err)
	}
	return s.open(ctx, creds, st, out)
}

// Reset closes the session, zeroes statistics and forgets the last
// credentials and current account.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.Close(ctx); err != nil {
		return err
	}

	s.stats.Reset()

	s.mu.Lock()
	s.creds = Credentials{}
	s.hasCreds = false
	s.current = ""
	s.mu.Unlock()

	s.logger.Info("session reset")
	return nil
}

// RecordError reports an error observed by a collaborator.
func (s *Session) RecordError(code int, message string) {
	s.stats.RecordError(code, message)
	s.logger.Warn("error recorded", "code", code, "message", message)
	s.events.Publish(events.ErrorContext{Code: code, Message: message})
}

// Shutdown closes the session and waits for background reconnection to
// finish, bounded by ctx.
func (s *Session) Shutdown(ctx context.Context) error {
	s.cancel()
	s.Close(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout, reconnection still running")
		return fmt.Errorf("wait for reconnection: %w", ctx.Err())
	}
}

// EnableAutoReconnect turns on background recovery with the given budget.
func (s *Session) EnableAutoReconnect(attempts int, delay time.Duration) {
	s.mu.Lock()
	s.cfg.AutoReconnect = true
	s.cfg.RetryAttempts = attempts
	s.cfg.RetryDelay = delay
	s.mu.Unlock()
	s.logger.Info("auto-reconnect enabled", "attempts", attempts, "delay", delay)
}

// DisableAutoReconnect turns off background recovery. A loop already
// running is not stopped.
func (s *Session) DisableAutoReconnect() {
	s.mu.Lock()
	s.cfg.AutoReconnect = false
	s.mu.Unlock()
	s.logger.Info("auto-reconnect disabled")
}

// SetRetryAttempts sets the reconnection attempt budget.
func (s *Session) SetRetryAttempts(n int) {
	s.mu.Lock()
	s.cfg.RetryAttempts = n
	s.mu.Unlock()
	s.logger.Info("retry attempts set", "attempts", n)
}

// SetRetryDelay sets the wait between reconnection attempts.
func (s *Session) SetRetryDelay(d time.Duration) {
	s.mu.Lock()
	s.cfg.RetryDelay = d
	s.mu.Unlock()
	s.logger.Info("retry delay set", "delay", d)
}

// SetConfig replaces the session configuration. It takes effect on the next
// operation.
func (s *Session) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Config returns the current configuration.
func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ID returns the unique id of this session instance.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Credentials returns the credentials of the last successful login.
func (s *Session) Credentials() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.hasCreds
}

// CurrentAccount returns the name of the account last switched to.
func (s *Session) CurrentAccount() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Handle returns the backend handle for collaborators that issue their own
// terminal calls.
func (s *Session) Handle() backend.Handle { return s.handle }

// Stats returns a snapshot of the connection statistics.
func (s *Session) Stats() stats.Statistics { return s.stats.Snapshot() }

// Events returns the session's event dispatcher.
func (s *Session) Events() *events.Dispatcher { return s.events }

// Accounts returns the session's credential store.
func (s *Session) Accounts() *accounts.Store { return s.accounts }

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) bumpEpoch() {
	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()
}
