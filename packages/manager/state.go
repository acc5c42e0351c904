package manager

import "fmt"

// State is a manager's lifecycle position. Transitions only move forward:
// Created, then Dispatched, then exactly one terminal state.
type State int

const (
	Created State = iota
	Dispatched
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{
	Created:    "created",
	Dispatched: "dispatched",
	Completed:  "completed",
	Failed:     "failed",
	Cancelled:  "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState reverses State.String.
func ParseState(s string) (State, bool) {
	for i, name := range stateNames {
		if name == s {
			return State(i), true
		}
	}
	return Created, false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, ok := ParseState(string(text))
	if !ok {
		return fmt.Errorf("unknown manager state %q", text)
	}
	*s = parsed
	return nil
}
