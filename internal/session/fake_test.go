package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/mt5-session/internal/backend"
	"github.com/rickgao/mt5-session/internal/events"
)

// fakeHandle is a scripted backend.Handle.
type fakeHandle struct {
	mu sync.Mutex

	openErr  error
	authErrs []error // results per Authenticate call; later calls succeed
	authFail error   // if set, every Authenticate fails with it
	closeErr error
	alive    bool
	lastErr  backend.Error

	healthHook func() // runs inside HealthCheck without the lock
	authHook   func() // runs inside Authenticate without the lock

	opens     int
	auths     int
	closes    int
	lastLogin int64
	lastOpts  backend.OpenOptions
}

func (f *fakeHandle) Open(_ context.Context, opts backend.OpenOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.lastOpts = opts
	return f.openErr
}

func (f *fakeHandle) Authenticate(_ context.Context, login int64, _, _ string) error {
	f.mu.Lock()
	hook := f.authHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.auths
	f.auths++
	f.lastLogin = login
	if f.authFail != nil {
		return f.authFail
	}
	if n < len(f.authErrs) {
		return f.authErrs[n]
	}
	return nil
}

func (f *fakeHandle) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakeHandle) HealthCheck(context.Context) backend.Health {
	f.mu.Lock()
	hook := f.healthHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return backend.Health{Alive: f.alive, Info: map[string]any{"build": 4410}}
}

func (f *fakeHandle) LastError(context.Context) backend.Error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *fakeHandle) authCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths
}

func (f *fakeHandle) set(fn func(f *fakeHandle)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// eventLog records every published event.
type eventLog struct {
	mu  sync.Mutex
	got []events.Event
}

func recordEvents(s *Session) *eventLog {
	l := &eventLog{}
	for _, name := range events.Names {
		s.Events().Subscribe(name, func(ev events.Event) error {
			l.mu.Lock()
			l.got = append(l.got, ev)
			l.mu.Unlock()
			return nil
		})
	}
	return l
}

func (l *eventLog) count(name events.Name) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.got {
		if ev.EventName() == name {
			n++
		}
	}
	return n
}

func (l *eventLog) last(name events.Name) events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.got) - 1; i >= 0; i-- {
		if l.got[i].EventName() == name {
			return l.got[i]
		}
	}
	return nil
}

var demoCreds = Credentials{Login: 555, Secret: "x", Server: "Demo-1"}

func newTestSession(h *fakeHandle) *Session {
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	return New(h, cfg, nil, nil)
}

func waitReconnect(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.ReconnectDone():
	case <-time.After(2 * time.Second):
		t.Fatal("reconnection did not finish")
	}
}
