// Package database provides the PostgreSQL/TimescaleDB connection pool used
// by the event journal, and bootstraps the journal schema.
//
// On TimescaleDB the session_events table is converted to a hypertable on
// occurred_at; on plain PostgreSQL it stays a regular table.
package database
