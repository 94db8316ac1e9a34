package worker

// State is the loop's current phase.
type State int

const (
	StateScanning State = iota
	StateIdle
	StateClaiming
	StateExecuting
	StateFinalizing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateIdle:
		return "idle"
	case StateClaiming:
		return "claiming"
	case StateExecuting:
		return "executing"
	case StateFinalizing:
		return "finalizing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
