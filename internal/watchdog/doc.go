// Package watchdog probes a connected session on a fixed interval.
//
// The watchdog:
//   - Calls IsAlive only while the session reports Connected
//   - Leaves loss handling (disconnect event, auto-reconnect) to the session
//   - Counts probes and failures for status output
package watchdog
