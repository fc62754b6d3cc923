package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/mt5-session/internal/accounts"
	"github.com/rickgao/mt5-session/internal/auth"
	"github.com/rickgao/mt5-session/internal/backend"
	"github.com/rickgao/mt5-session/internal/config"
	"github.com/rickgao/mt5-session/internal/database"
	"github.com/rickgao/mt5-session/internal/journal"
	"github.com/rickgao/mt5-session/internal/session"
	"github.com/rickgao/mt5-session/internal/watchdog"
)

const shutdownTimeout = 30 * time.Second

// daemon owns every long-running component of sessiond run.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	session  *session.Session
	watchdog *watchdog.Watchdog
	journal  *journal.Writer
	pool     *pgxpool.Pool
	health   *http.Server
}

// newSession builds the bridge, account store and session from cfg.
func newSession(cfg *config.Config, logger *slog.Logger) (*session.Session, error) {
	var signer *auth.Signer
	if cfg.Bridge.KeyID != "" {
		s, err := auth.LoadSigner(cfg.Bridge.KeyID, cfg.Bridge.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load bridge key: %w", err)
		}
		signer = s
	}

	bridge := backend.NewBridge(cfg.BackendConfig(), signer, logger.With("component", "bridge"))

	store := accounts.NewStore(logger)
	if cfg.Accounts.File != "" {
		if _, err := store.LoadFile(cfg.Accounts.File); err != nil {
			return nil, err
		}
	}

	settings, err := sessionSettings(cfg, snapshotPath)
	if err != nil {
		return nil, err
	}

	return session.New(bridge, settings, store, logger), nil
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	sess, err := newSession(cfg, logger)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:     cfg,
		logger:  logger,
		session: sess,
		watchdog: watchdog.New(watchdog.Config{
			Interval: cfg.Watchdog.Interval,
			Timeout:  cfg.Bridge.CommandTimeout,
		}, sess, logger.With("component", "watchdog")),
	}

	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect journal database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
		d.pool = pool
		d.journal = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, sess.ID(), logger.With("component", "journal"))
		d.journal.Attach(sess.Events())
	}

	if cfg.Health.Port > 0 {
		d.health = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
			Handler: newHealthHandler(cfg.Health.Path, sess, d.components, logger),
		}
	}

	return d, nil
}

// components reports watchdog and journal counters for the health endpoint.
func (d *daemon) components() map[string]any {
	c := map[string]any{"watchdog": d.watchdog.Stats()}
	if d.journal != nil {
		c["journal"] = d.journal.Stats()
	}
	return c
}

// run starts every component, logs in with the default account and blocks
// until ctx is cancelled.
func (d *daemon) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if d.health != nil {
		g.Go(func() error {
			d.logger.Info("starting health server", "addr", d.health.Addr, "path", d.cfg.Health.Path)
			if err := d.health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
	}

	if d.journal != nil {
		if err := d.journal.Start(gctx); err != nil {
			return d.abort(g, fmt.Errorf("start journal: %w", err))
		}
	}

	if name := d.cfg.Accounts.Default; name != "" {
		if err := d.session.SwitchTo(gctx, name, nil); err != nil {
			d.logger.Error("initial login failed", "account", name, "error", err)
		}
	} else {
		d.logger.Warn("no default account configured, waiting for shutdown")
	}

	if err := d.watchdog.Start(gctx); err != nil {
		return d.abort(g, fmt.Errorf("start watchdog: %w", err))
	}

	g.Go(func() error {
		<-gctx.Done()
		d.shutdown()
		return nil
	})

	return g.Wait()
}

// abort stops whatever already started and waits for the group before
// returning err.
func (d *daemon) abort(g *errgroup.Group, err error) error {
	d.logger.Error("startup failed", "error", err)
	d.shutdown()
	g.Wait()
	return err
}

// shutdown stops components in reverse start order.
func (d *daemon) shutdown() {
	d.logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.watchdog.Stop(ctx); err != nil {
		d.logger.Warn("watchdog stop failed", "error", err)
	}
	if err := d.session.Shutdown(ctx); err != nil {
		d.logger.Warn("session shutdown failed", "error", err)
	}
	if d.journal != nil {
		d.journal.Stop(ctx)
		d.journal.Detach(d.session.Events())
	}
	if d.pool != nil {
		d.pool.Close()
	}
	if d.health != nil {
		d.health.Shutdown(ctx)
	}
}
