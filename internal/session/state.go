package session

import "fmt"

// State is the lifecycle state of a Session.
type State int32

const (
	Disconnected State = iota
	Initializing
	Connected
	Reconnecting
	Failed
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Initializing: "initializing",
	Connected:    "connected",
	Reconnecting: "reconnecting",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
