package upstream

// State is the handshake position of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingConnAck
	StateSubscribing
	StateAwaitingSubAck
	StateStreaming
	StateClosing
	StateFailed
)

var stateNames = [...]string{
	StateDisconnected:    "disconnected",
	StateConnecting:      "connecting",
	StateAwaitingConnAck: "awaiting_connack",
	StateSubscribing:     "subscribing",
	StateAwaitingSubAck:  "awaiting_suback",
	StateStreaming:       "streaming",
	StateClosing:         "closing",
	StateFailed:          "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// transitions lists the legal successors of every state. Closing and
// Failed are reachable from anywhere a session can be cancelled or fail.
var transitions = map[State][]State{
	StateDisconnected:    {StateConnecting},
	StateConnecting:      {StateAwaitingConnAck, StateClosing, StateFailed},
	StateAwaitingConnAck: {StateSubscribing, StateClosing, StateFailed},
	StateSubscribing:     {StateAwaitingSubAck, StateClosing, StateFailed},
	StateAwaitingSubAck:  {StateStreaming, StateClosing, StateFailed},
	StateStreaming:       {StateClosing, StateFailed},
	StateClosing:         {StateDisconnected},
	StateFailed:          {StateDisconnected},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
