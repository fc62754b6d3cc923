package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/mt5-session/internal/events"
)

// Reconnect replays the last successful credentials with the configured
// retry budget and blocks until it succeeds, gives up or is superseded.
// If a reconnection is already running it returns (false, nil) at once.
func (s *Session) Reconnect(ctx context.Context) (bool, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("reconnection already in progress")
		return false, nil
	}
	defer s.inFlight.Store(false)

	cfg := s.Config()
	return s.runReconnection(ctx, cfg.RetryAttempts, cfg.RetryDelay)
}

// Reconnecting reports whether a reconnection loop is running.
func (s *Session) Reconnecting() bool {
	return s.inFlight.Load()
}

// ReconnectDone returns a channel closed when the most recent background
// reconnection finishes. If none was started the channel is already closed.
func (s *Session) ReconnectDone() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runDone == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return s.runDone
}

// startReconnect launches a background reconnection unless one is running.
func (s *Session) startReconnect() bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("reconnection already in progress")
		return false
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.runDone = done
	attempts, delay := s.cfg.RetryAttempts, s.cfg.RetryDelay
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer s.inFlight.Store(false)

		ok, err := s.runReconnection(s.bgCtx, attempts, delay)
		if err != nil {
			s.logger.Error("auto-reconnection failed", "error", err)
			return
		}
		if ok {
			s.logger.Info("auto-reconnection succeeded")
		}
	}()
	return true
}

// runReconnection retries the stored credentials up to maxAttempts times,
// waiting delay between attempts. The caller must hold the in-flight flag.
//
// Before each attempt the loop aborts quietly, returning (false, nil), if
// the session was connected or a caller ran Open, Close, Reauthenticate or
// SwitchTo since the loop began.
func (s *Session) runReconnection(ctx context.Context, maxAttempts int, delay time.Duration) (bool, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	s.mu.RLock()
	creds, hasCreds := s.creds, s.hasCreds
	startEpoch := s.epoch
	s.mu.RUnlock()

	if !hasCreds {
		s.setState(Failed)
		s.stats.RecordError(codeLocal, ErrNoCredentials.Error())
		s.logger.Error("cannot reconnect without prior credentials")
		s.events.Publish(events.ErrorContext{Code: codeLocal, Message: ErrNoCredentials.Error()})
		return false, ErrNoCredentials
	}

	s.logger.Info("starting reconnection", "max_attempts", maxAttempts, "delay", delay)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var out outbox

		s.opMu.Lock()
		if s.superseded(startEpoch) {
			s.opMu.Unlock()
			s.logger.Info("reconnection superseded", "attempt", attempt)
			return false, nil
		}
		s.setState(Reconnecting)
		s.logger.Info("reconnection attempt", "attempt", attempt, "max_attempts", maxAttempts)
		err := s.reauthenticate(ctx, creds, recoveryAttempt, &out)
		s.opMu.Unlock()

		out.flush(s.events)

		if err == nil {
			s.events.Publish(events.ReconnectContext{Attempt: attempt})
			return true, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			s.logger.Debug("waiting before next attempt", "delay", delay)
			if !sleepCtx(ctx, delay) {
				return false, fmt.Errorf("reconnection cancelled: %w", ctx.Err())
			}
		}
	}

	s.opMu.Lock()
	if s.superseded(startEpoch) {
		s.opMu.Unlock()
		return false, nil
	}
	s.setState(Failed)
	s.opMu.Unlock()

	msg := fmt.Sprintf("reconnection failed after %d attempts", maxAttempts)
	s.stats.RecordError(codeLocal, msg)
	s.events.Publish(events.ErrorContext{Code: codeLocal, Message: msg})

	return false, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, maxAttempts, lastErr)
}

// superseded must be called with opMu held.
func (s *Session) superseded(startEpoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch != startEpoch || s.state == Connected
}

// sleepCtx waits for d. It returns false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
