// Package backend defines the boundary to the trading terminal.
//
// Handle is the opaque connection the session drives. Bridge implements it
// over a WebSocket to a terminal bridge process running next to the
// terminal:
//   - One JSON command per operation, correlated to its response by id
//   - Ping/pong keepalive; a stale or dropped socket reports unhealthy
//   - Re-dials on the next Open after Close or a dropped connection
package backend
