package imagecapture

import "fmt"

// State is the per-device session state.
type State int

const (
	Discovered State = iota // delegate registered, no session
	Opening                 // open requested, waiting for the device
	Open                    // session usable for requests
	Closing                 // close requested, waiting for the device
	Closed                  // session ended; terminal
	Removed                 // device unplugged; terminal, wins over everything
	Error                   // close failed; terminal
)

func (s State) String() string {
	switch s {
	case Discovered:
		return "Discovered"
	case Opening:
		return "Opening"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	case Removed:
		return "Removed"
	case Error:
		return "Error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s can never lead back to Open. Only removal
// may still follow.
func (s State) Terminal() bool {
	return s == Closed || s == Removed || s == Error
}

// transitions lists every legal edge. Removal is legal from every
// non-removed state and is handled separately.
var transitions = map[State][]State{
	Discovered: {Opening, Open, Closed}, // Open: late success after an open timeout
	Opening:    {Open, Discovered, Closed},
	Open:       {Closing, Closed},
	Closing:    {Closed, Error},
}

func canTransition(from, to State) bool {
	if to == Removed {
		return from != Removed
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
