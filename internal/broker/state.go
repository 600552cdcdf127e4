package broker

// State is the lifecycle of one Client's connection, independent of how the
// session's window is presented.
type State int

const (
	// Negotiating exchanges credentials for a socket token.
	Negotiating State = iota
	// Opening attaches the emulator and dials the socket.
	Opening
	// Connected pumps bytes in both directions.
	Connected
	// Disconnected shows a descriptor; nothing reaches the emulator.
	Disconnected
	// Closed is terminal: the Client was torn down.
	Closed
)

var stateNames = [...]string{
	Negotiating:  "negotiating",
	Opening:      "opening",
	Connected:    "connected",
	Disconnected: "disconnected",
	Closed:       "closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// legal lists the successors of each state. Closed is reachable from every
// state and is handled by teardown directly.
var legal = map[State][]State{
	Negotiating:  {Opening, Disconnected},
	Opening:      {Connected, Disconnected},
	Connected:    {Disconnected},
	Disconnected: nil,
}

// CanMove reports whether s may move to next.
func (s State) CanMove(next State) bool {
	if next == Closed {
		return s != Closed
	}
	for _, n := range legal[s] {
		if n == next {
			return true
		}
	}
	return false
}
