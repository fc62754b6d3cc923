package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/mt5-session/internal/session"
)

// Target is the session being watched.
type Target interface {
	State() session.State
	IsAlive(ctx context.Context) bool
}

// Config holds watchdog configuration.
type Config struct {
	Interval time.Duration // Probe interval (default: 10s)
	Timeout  time.Duration // Per-probe timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Stats counts probe outcomes.
type Stats struct {
	Probes   int64
	Failures int64
	Skipped  int64
}

// Watchdog periodically checks session liveness.
type Watchdog struct {
	cfg    Config
	target Target
	logger *slog.Logger

	probes   atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watchdog.
func New(cfg Config, target Target, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Watchdog{
		cfg:    cfg,
		target: target,
		logger: logger,
	}
}

// Start begins the probe loop.
func (w *Watchdog) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("watchdog started", "interval", w.cfg.Interval)
	return nil
}

// Stop shuts down the probe loop.
func (w *Watchdog) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("watchdog stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns probe counters.
func (w *Watchdog) Stats() Stats {
	return Stats{
		Probes:   w.probes.Load(),
		Failures: w.failures.Load(),
		Skipped:  w.skipped.Load(),
	}
}

func (w *Watchdog) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.probe()
		}
	}
}

// probe runs a single liveness check.
func (w *Watchdog) probe() {
	if st := w.target.State(); st != session.Connected {
		w.skipped.Add(1)
		w.logger.Debug("watchdog probe skipped", "state", st)
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.Timeout)
	defer cancel()

	w.probes.Add(1)
	if w.target.IsAlive(ctx) {
		return
	}
	w.failures.Add(1)
	w.logger.Warn("watchdog probe failed")
}
