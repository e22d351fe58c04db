package transport

// State is the connection state of the secure transport.
// It is owned and mutated by the Transport only; everything else observes it.
type State int32

const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateEncrypting
	StateEncrypted
	StateClosing
	StateError
)

var stateNames = [...]string{
	StateUnconnected: "unconnected",
	StateConnecting:  "connecting",
	StateConnected:   "connected",
	StateEncrypting:  "encrypting",
	StateEncrypted:   "encrypted",
	StateClosing:     "closing",
	StateError:       "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// IsLive reports whether the socket is up or on its way up. A transport in a
// live state must not be reconnected: either it still works, or an attempt
// that may yet succeed is in flight.
func (s State) IsLive() bool {
	switch s {
	case StateConnecting, StateConnected, StateEncrypting, StateEncrypted:
		return true
	default:
		return false
	}
}
