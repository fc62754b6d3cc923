package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mt5-session/internal/auth"
)

// Bridge is a Handle backed by a WebSocket connection to a terminal bridge
// process. The socket is dialed on Open and torn down on Close; a dropped
// socket makes HealthCheck report the terminal as not alive.
type Bridge struct {
	cfg    BridgeConfig
	signer *auth.Signer
	logger *slog.Logger

	mu      sync.RWMutex
	link    *link
	lastErr Error

	pendingMu sync.Mutex
	pending   map[int64]chan Response
	cmdID     atomic.Int64

	wg sync.WaitGroup
}

// link is a single dialed socket and its goroutines.
type link struct {
	conn    *websocket.Conn
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex

	mu         sync.Mutex
	lastPongAt time.Time
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

func (l *link) alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// NewBridge creates a bridge handle. signer may be nil for an unsigned
// handshake.
func NewBridge(cfg BridgeConfig, signer *auth.Signer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultBridgeConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}

	return &Bridge{
		cfg:     cfg,
		signer:  signer,
		logger:  logger,
		pending: make(map[int64]chan Response),
		lastErr: Error{Code: CodeOK, Message: "Success"},
	}
}

// Open dials the bridge if needed and initializes the terminal.
func (b *Bridge) Open(ctx context.Context, opts OpenOptions) error {
	if _, err := b.ensureLink(ctx); err != nil {
		b.setLastError(CodeNoIPC, err.Error())
		return err
	}

	params := InitializeParams{
		Path:      opts.InstallPath,
		TimeoutMs: opts.Timeout.Milliseconds(),
		Portable:  opts.Portable,
	}
	wait := b.cfg.CommandTimeout
	if opts.Timeout > wait {
		wait = opts.Timeout
	}

	_, err := b.call(ctx, cmdInitialize, params, wait)
	return err
}

// Authenticate logs in to a trading account on an opened terminal.
func (b *Bridge) Authenticate(ctx context.Context, login int64, secret, server string) error {
	params := LoginParams{Login: login, Password: secret, Server: server}
	_, err := b.call(ctx, cmdLogin, params, b.cfg.CommandTimeout)
	return err
}

// Close asks the bridge to shut the terminal down and closes the socket.
// Closing an unopened bridge is a no-op.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.RLock()
	l := b.link
	b.mu.RUnlock()

	if l == nil {
		return nil
	}

	if l.alive() {
		if _, err := b.call(ctx, cmdShutdown, nil, b.cfg.CommandTimeout); err != nil {
			b.logger.Debug("bridge shutdown command failed", "error", err)
		}
		deadline := time.Now().Add(time.Second)
		l.writeMu.Lock()
		l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		l.writeMu.Unlock()
	}
	l.close()

	b.mu.Lock()
	if b.link == l {
		b.link = nil
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Debug("bridge closed", "url", b.cfg.URL)
	return nil
}

// HealthCheck reports whether the terminal is connected to its trade server.
func (b *Bridge) HealthCheck(ctx context.Context) Health {
	if !b.Connected() {
		return Health{Alive: false}
	}

	raw, err := b.call(ctx, cmdTerminalInfo, nil, b.cfg.CommandTimeout)
	if err != nil {
		b.logger.Debug("terminal info failed", "error", err)
		return Health{Alive: false}
	}

	var info TerminalInfoMsg
	if err := json.Unmarshal(raw, &info); err != nil {
		b.logger.Debug("decode terminal info", "error", err)
		return Health{Alive: false}
	}
	attrs := make(map[string]any)
	if err := json.Unmarshal(raw, &attrs); err != nil {
		attrs = nil
	}

	return Health{Alive: info.Connected, Info: attrs}
}

// LastError returns the terminal's last error, or the bridge's own last
// transport error when the terminal cannot be reached.
func (b *Bridge) LastError(ctx context.Context) Error {
	if b.Connected() {
		raw, err := b.call(ctx, cmdLastError, nil, b.cfg.CommandTimeout)
		if err == nil {
			var msg ErrorMsg
			if err := json.Unmarshal(raw, &msg); err == nil {
				return Error{Code: msg.Code, Message: msg.Message}
			}
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

// Connected reports whether the bridge socket is up.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	l := b.link
	b.mu.RUnlock()
	return l != nil && l.alive()
}

func (b *Bridge) setLastError(code int, msg string) {
	b.mu.Lock()
	b.lastErr = Error{Code: code, Message: msg}
	b.mu.Unlock()
}

// ensureLink returns the live socket, dialing a new one if needed.
func (b *Bridge) ensureLink(ctx context.Context) (*link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.link != nil && b.link.alive() {
		return b.link, nil
	}

	header := http.Header{}
	if b.signer != nil {
		u, err := url.Parse(b.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse bridge url: %w", err)
		}
		signed, err := b.signer.SignHandshake(u.Path)
		if err != nil {
			return nil, fmt.Errorf("sign handshake: %w", err)
		}
		header = signed
	}

	dialer := websocket.Dialer{HandshakeTimeout: b.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, b.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	l := &link{
		conn:       conn,
		done:       make(chan struct{}),
		lastPongAt: time.Now(),
	}

	conn.SetPingHandler(func(data string) error {
		l.mu.Lock()
		l.lastPongAt = time.Now()
		l.mu.Unlock()

		l.writeMu.Lock()
		defer l.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		l.mu.Lock()
		l.lastPongAt = time.Now()
		l.mu.Unlock()
		return nil
	})

	b.link = l
	b.wg.Add(2)
	go b.readLoop(l)
	go b.heartbeatLoop(l)

	b.logger.Debug("bridge connected", "url", b.cfg.URL)
	return l, nil
}

// call sends a command and waits for its response. wait bounds the call when
// ctx carries no deadline of its own.
func (b *Bridge) call(ctx context.Context, cmd string, params interface{}, wait time.Duration) (json.RawMessage, error) {
	b.mu.RLock()
	l := b.link
	b.mu.RUnlock()

	if l == nil || !l.alive() {
		b.setLastError(CodeNoIPC, "no connection to terminal bridge")
		return nil, fmt.Errorf("%s: %w", cmd, ErrNotConnected)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	id := b.cmdID.Add(1)
	respCh := make(chan Response, 1)

	b.pendingMu.Lock()
	b.pending[id] = respCh
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	data, err := json.Marshal(Command{ID: id, Cmd: cmd, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", cmd, err)
	}

	l.writeMu.Lock()
	l.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	err = l.conn.WriteMessage(websocket.TextMessage, data)
	l.writeMu.Unlock()
	if err != nil {
		b.setLastError(CodeNoIPC, err.Error())
		l.close()
		return nil, fmt.Errorf("send %s: %w", cmd, err)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.setLastError(CodeIPCTimeout, fmt.Sprintf("%s timed out", cmd))
			return nil, fmt.Errorf("%s: %w", cmd, ErrTimeout)
		}
		return nil, ctx.Err()
	case <-l.done:
		b.setLastError(CodeNoIPC, "bridge connection lost")
		return nil, fmt.Errorf("%s: %w", cmd, ErrNotConnected)
	case resp := <-respCh:
		if resp.Type == "error" {
			var msg ErrorMsg
			if err := json.Unmarshal(resp.Msg, &msg); err != nil {
				return nil, fmt.Errorf("decode %s error: %w", cmd, err)
			}
			b.setLastError(msg.Code, msg.Message)
			return nil, &Error{Code: msg.Code, Message: msg.Message}
		}
		return resp.Msg, nil
	}
}

// readLoop routes responses to waiting callers until the socket fails.
func (b *Bridge) readLoop(l *link) {
	defer b.wg.Done()
	defer l.close()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if l.alive() {
				b.logger.Warn("bridge connection lost", "error", err)
			}
			return
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil || resp.ID == 0 {
			b.logger.Debug("ignoring unexpected bridge message", "size", len(data))
			continue
		}
		b.routeResponse(resp)
	}
}

// routeResponse sends a response to the waiting goroutine.
func (b *Bridge) routeResponse(resp Response) {
	b.pendingMu.Lock()
	ch, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
	}
	b.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// heartbeatLoop pings the bridge and drops the socket when pongs stop.
func (b *Bridge) heartbeatLoop(l *link) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := l.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(b.cfg.WriteTimeout))
			l.writeMu.Unlock()
			if err != nil {
				b.logger.Debug("failed to send ping", "error", err)
			}

			l.mu.Lock()
			last := l.lastPongAt
			l.mu.Unlock()

			if time.Since(last) > b.cfg.PingTimeout {
				b.logger.Warn("no pong received, bridge connection stale",
					"last_pong", last,
					"timeout", b.cfg.PingTimeout,
				)
				b.setLastError(CodeNoIPC, ErrStaleConnection.Error())
				l.close()
				return
			}
		}
	}
}
