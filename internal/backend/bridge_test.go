package backend

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mt5-session/internal/auth"
)

// fakeBridge is a scripted terminal bridge.
type fakeBridge struct {
	mu       sync.Mutex
	received []Command
	replies  map[string]func(Command) Response
}

func (f *fakeBridge) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.received))
	for _, c := range f.received {
		out = append(out, c.Cmd)
	}
	return out
}

func okReply(msg string) func(Command) Response {
	return func(c Command) Response {
		return Response{ID: c.ID, Type: "ok", Msg: json.RawMessage(msg)}
	}
}

func errReply(code int, message string) func(Command) Response {
	return func(c Command) Response {
		data, _ := json.Marshal(ErrorMsg{Code: code, Message: message})
		return Response{ID: c.ID, Type: "error", Msg: data}
	}
}

// mockBridgeServer serves fb over a WebSocket. check, if set, inspects the
// upgrade request and may reject it.
func mockBridgeServer(t *testing.T, fb *fakeBridge, check func(*http.Request) bool) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil && !check(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			fb.mu.Lock()
			fb.received = append(fb.received, cmd)
			reply, ok := fb.replies[cmd.Cmd]
			fb.mu.Unlock()

			if !ok {
				continue // never answer
			}
			if err := conn.WriteJSON(reply(cmd)); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/bridge/v1"
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{replies: map[string]func(Command) Response{
		cmdInitialize:   okReply(`{}`),
		cmdLogin:        okReply(`{}`),
		cmdShutdown:     okReply(`{}`),
		cmdTerminalInfo: okReply(`{"connected":true,"build":4410,"company":"Demo Broker"}`),
		cmdLastError:    okReply(`{"code":1,"message":"Success"}`),
	}}
}

func testBridgeConfig(url string) BridgeConfig {
	cfg := DefaultBridgeConfig()
	cfg.URL = url
	cfg.CommandTimeout = 500 * time.Millisecond
	return cfg
}

func TestBridge_OpenAuthenticateClose(t *testing.T) {
	fb := newFakeBridge()
	server := mockBridgeServer(t, fb, nil)
	defer server.Close()

	b := NewBridge(testBridgeConfig(wsURL(server)), nil, nil)
	ctx := context.Background()

	if err := b.Open(ctx, OpenOptions{InstallPath: `C:\MT5\terminal64.exe`, Timeout: time.Second}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !b.Connected() {
		t.Error("expected Connected after Open")
	}
	if err := b.Authenticate(ctx, 12345, "pw", "Demo-Server"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if b.Connected() {
		t.Error("expected not Connected after Close")
	}

	got := fb.commands()
	want := []string{cmdInitialize, cmdLogin, cmdShutdown}
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBridge_InitializeParams(t *testing.T) {
	fb := newFakeBridge()
	server := mockBridgeServer(t, fb, nil)
	defer server.Close()

	b := NewBridge(testBridgeConfig(wsURL(server)), nil, nil)
	defer b.Close(context.Background())

	opts := OpenOptions{InstallPath: "/opt/mt5", Timeout: 60 * time.Second, Portable: true}
	if err := b.Open(context.Background(), opts); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	fb.mu.Lock()
	raw, _ := json.Marshal(fb.received[0].Params)
	fb.mu.Unlock()

	var params InitializeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Path != "/opt/mt5" || params.TimeoutMs != 60000 || !params.Portable {
		t.Errorf("params = %+v", params)
	}
}

func TestBridge_AuthenticateError(t *testing.T) {
	fb := newFakeBridge()
	fb.replies[cmdLogin] = errReply(-6, "Authorization failed")
	server := mockBridgeServer(t, fb, nil)
	defer server.Close()

	b := NewBridge(testBridgeConfig(wsURL(server)), nil, nil)
	ctx := context.Background()
	defer b.Close(ctx)

	if err := b.Open(ctx, OpenOptions{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err := b.Authenticate(ctx, 1, "bad", "Demo")
	var termErr *Error
	if !errors.As(err, &termErr) {
		t.Fatalf("Authenticate error = %v, want *Error", err)
	}
	if termErr.Code != -6 || termErr.Message != "Authorization failed" {
		t.Errorf("error = %+v", termErr)
	}
}

func TestBridge_HealthCheck(t *testing.T) {
	fb := newFakeBridge()
	server := mockBridgeServer(t, fb, nil)
	defer server.Close()

	b := NewBridge(testBridgeConfig(wsURL(server)), nil, nil)
	ctx := context.Background()

	if h := b.HealthCheck(ctx); h.Alive {
		t.Error("expected not alive before Open")
	}

	if err := b.Open(ctx, OpenOptions{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	h := b.HealthCheck(ctx)
	if !h.Alive {
		t.Error("expected alive after Open")
	}
	if h.Info["company"] != "Demo Broker" {
		t.Errorf("Info[company] = %v", h.Info["company"])
	}

	b.Close(ctx)
	if h := b.HealthCheck(ctx); h.Alive {
		t.Error("expected not alive after Close")
	}
}

func TestBridge_TerminalDisconnected(t *testing.T) {
	fb := newFakeBridge()
	fb.replies[cmdTerminalInfo] = okReply(`{"connected":false}`)
	server := mockBridgeServer(t, fb, nil)
	defer server.Close()

	b := NewBridge(testBridgeConfig(wsURL(server)), nil, nil)
	ctx := context.Background()
	defer b.Close(ctx)

	if err := b.Open(ctx, OpenOptions{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if h := b.HealthCheck(ctx); h.Alive {
		t.Error("expected not alive when terminal reports disconnected")
	}
}

func TestBridge_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	b := NewBridge(testBridgeConfig(url), nil, nil)
	ctx := context.Background()

	if err := b.Open(ctx, OpenOptions{}); err == nil {
		t.Fatal("expected Open to fail")
	}

	le := b.LastError(ctx)
	if le.Code != CodeNoIPC {
		t.Errorf("LastError code = %d, want %d", le.Code, CodeNoIPC)
	}
	if err := b.Authenticate(ctx, 1, "pw", "Demo"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Authenticate error = %v, want ErrNotConnected", err)
	}
}

func TestBridge_CommandTimeout(t *testing.T) {
	fb := newFakeBridge()
	delete(fb.replies, cmdLogin)
	server := mockBridgeServer(t, fb, nil)
	defer server.Close()

	cfg := testBridgeConfig(wsURL(server))
	cfg.CommandTimeout = 100 * time.Millisecond
	b := NewBridge(cfg, nil, nil)
	ctx := context.Background()
	defer b.Close(ctx)

	if err := b.Open(ctx, OpenOptions{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err := b.Authenticate(ctx, 1, "pw", "Demo")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Authenticate error = %v, want ErrTimeout", err)
	}

	// With last_error unanswered the local timeout is reported.
	fb.mu.Lock()
	delete(fb.replies, cmdLastError)
	fb.mu.Unlock()

	le := b.LastError(ctx)
	if le.Code != CodeIPCTimeout {
		t.Errorf("LastError code = %d, want %d", le.Code, CodeIPCTimeout)
	}
}

func TestBridge_ServerDrop(t *testing.T) {
	fb := newFakeBridge()

	var serverConn *websocket.Conn
	var connMu sync.Mutex
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connMu.Lock()
		serverConn = conn
		connMu.Unlock()

		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		conn.WriteJSON(fb.replies[cmd.Cmd](cmd))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	b := NewBridge(testBridgeConfig(wsURL(server)), nil, nil)
	ctx := context.Background()

	if err := b.Open(ctx, OpenOptions{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	connMu.Lock()
	serverConn.Close()
	connMu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for b.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.Connected() {
		t.Fatal("expected bridge to notice the dropped socket")
	}
	if h := b.HealthCheck(ctx); h.Alive {
		t.Error("expected not alive after drop")
	}
	b.Close(ctx)
}

func TestBridge_SignedHandshake(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var verifyErr error
	var verified bool
	var mu sync.Mutex

	fb := newFakeBridge()
	server := mockBridgeServer(t, fb, func(r *http.Request) bool {
		mu.Lock()
		defer mu.Unlock()
		verifyErr = auth.Verify(&key.PublicKey, r.Header, r.URL.Path)
		verified = true
		return verifyErr == nil && r.Header.Get(auth.HeaderKey) == "bridge-1"
	})
	defer server.Close()

	signer := &auth.Signer{KeyID: "bridge-1", PrivateKey: key}
	b := NewBridge(testBridgeConfig(wsURL(server)), signer, nil)
	ctx := context.Background()
	defer b.Close(ctx)

	if err := b.Open(ctx, OpenOptions{}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !verified {
		t.Fatal("handshake not inspected")
	}
	if verifyErr != nil {
		t.Errorf("signature verification failed: %v", verifyErr)
	}
}

func TestBridge_CloseWithoutOpen(t *testing.T) {
	b := NewBridge(testBridgeConfig("ws://127.0.0.1:1/bridge"), nil, nil)
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("Close on unopened bridge = %v, want nil", err)
	}
}
