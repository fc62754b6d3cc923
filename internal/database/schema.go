package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS session_events (
		id          UUID        NOT NULL,
		session_id  TEXT        NOT NULL,
		event       TEXT        NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		code        INTEGER,
		message     TEXT,
		payload     JSONB       NOT NULL,
		PRIMARY KEY (id, occurred_at)
	)`,
	`CREATE INDEX IF NOT EXISTS session_events_session_idx
		ON session_events (session_id, occurred_at DESC)`,
}

const hypertableStatement = `SELECT create_hypertable('session_events', 'occurred_at', if_not_exists => TRUE)`

// EnsureSchema creates the journal table if it does not exist. Converting it
// to a hypertable is attempted and skipped when TimescaleDB is not installed.
func EnsureSchema(ctx context.Context, db Execer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if _, err := db.Exec(ctx, hypertableStatement); err != nil {
		logger.Warn("session_events left as a plain table", "error", err)
	}

	logger.Debug("journal schema ready")
	return nil
}
