package session

// State is the lifecycle state of the protocol session.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateAwaitingPairing
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateAwaitingPairing:
		return "awaiting-pairing"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status is a point-in-time view of the manager.
type Status struct {
	State            State  `json:"state"`
	Phone            string `json:"phone,omitempty"`
	PairingCode      string `json:"pairingCode,omitempty"`
	Sending          bool   `json:"sending"`
	SchedulerRunning bool   `json:"schedulerRunning"`
}
