package share

// Mode selects how the directory is exposed.
type Mode int

const (
	ModeNone Mode = iota
	ModeLocal
	ModeGlobal
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeGlobal:
		return "global"
	default:
		return "none"
	}
}

// State is the orchestrator's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateServing
	StateTunnelPending
	StateReady
	StateTerminating
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateServing:
		return "serving"
	case StateTunnelPending:
		return "tunnel-pending"
	case StateReady:
		return "ready"
	case StateTerminating:
		return "terminating"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Target is what a run ended up sharing. URL is empty until it is known.
type Target struct {
	Mode Mode
	Port uint16
	URL  string
}
