// Package events implements the session Event Dispatcher.
//
// The dispatcher:
//   - Keeps an ordered list of handlers per event name
//   - Delivers events synchronously in subscription order
//   - Logs and swallows handler errors and panics so one bad
//     subscriber never starves the rest or the publisher
package events
