package events

import "time"

// Name identifies an event channel.
type Name string

const (
	Connect       Name = "connect"
	Disconnect    Name = "disconnect"
	Error         Name = "error"
	Reconnect     Name = "reconnect"
	AccountSwitch Name = "account_switch"
)

// Names lists the built-in event channels.
var Names = []Name{Connect, Disconnect, Error, Reconnect, AccountSwitch}

// Event is a payload delivered to subscribers of its Name.
type Event interface {
	EventName() Name
}

// ConnectContext is published after the session reaches Connected.
type ConnectContext struct {
	Login  int64     `json:"login"`
	Server string    `json:"server"`
	At     time.Time `json:"at"`
}

// DisconnectContext is published after the session reaches Disconnected.
type DisconnectContext struct {
	Reason string `json:"reason"` // "closed" or "lost"
}

// ErrorContext is published when a connect attempt or reconnection fails,
// or when an error is reported explicitly.
type ErrorContext struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ReconnectContext is published once per successful reconnection run.
type ReconnectContext struct {
	Attempt int `json:"attempt"` // 1-based attempt that succeeded
}

// AccountSwitchContext is published after a successful account switch.
type AccountSwitchContext struct {
	Account string `json:"account"`
}

func (ConnectContext) EventName() Name       { return Connect }
func (DisconnectContext) EventName() Name    { return Disconnect }
func (ErrorContext) EventName() Name         { return Error }
func (ReconnectContext) EventName() Name     { return Reconnect }
func (AccountSwitchContext) EventName() Name { return AccountSwitch }
