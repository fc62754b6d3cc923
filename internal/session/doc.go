// Package session owns the lifecycle of the single authenticated terminal
// connection.
//
// A Session drives a backend.Handle through these states:
//
//	Disconnected --Open--> Initializing --ok--> Connected
//	Initializing --fail--> Failed
//	Connected --Close--> Disconnected
//	Connected --IsAlive sees a dead terminal--> Disconnected --auto--> Reconnecting
//	Reconnecting --attempt fails, retries left--> Reconnecting
//	Reconnecting --ok--> Connected
//	Reconnecting --attempts exhausted--> Failed
//	Failed --Open/Reauthenticate--> Initializing
//
// Recovery runs on a background goroutine started by IsAlive; at most one
// reconnection loop runs at a time. Outcomes are reported through the event
// dispatcher and the statistics recorder.
package session
