package playback

import "fmt"

// State is the playback controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	StateIdle:     {StateLoading},
	StateLoading:  {StatePlaying, StateIdle},
	StatePlaying:  {StatePaused, StateLoading, StateFinished, StateIdle},
	StatePaused:   {StatePlaying, StateIdle, StateLoading},
	StateFinished: {StateIdle, StateLoading},
}

// CanTransition reports whether from -> to is a legal move. Staying in the
// same state is always allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFinished; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", b)
}
