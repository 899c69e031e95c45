package realtime

import "time"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateStreaming
	StateClosing
	StateClosed
	// StateError is transient: the session passes through it on its way to
	// StateClosed after a terminal failure.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether the session owns a live or pending transport.
func (s State) Active() bool {
	return s == StateConnecting || s == StateHandshaking || s == StateStreaming
}

var validTransitions = map[State][]State{
	StateIdle:        {StateConnecting, StateClosed},
	StateConnecting:  {StateHandshaking, StateIdle, StateClosing, StateError},
	StateHandshaking: {StateStreaming, StateClosing, StateError},
	StateStreaming:   {StateClosing, StateError},
	StateClosing:     {StateClosed},
	StateError:       {StateClosed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateChange represents a state transition event.
type StateChange struct {
	SessionID string
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes session state changes. Listeners run without the
// session lock held and may call back into the session.
type StateListener interface {
	OnStateChange(event StateChange)
}

type StateListenerFunc func(StateChange)

func (f StateListenerFunc) OnStateChange(event StateChange) { f(event) }

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
