package worker

// State is the lifecycle position of a worker.
type State int32

const (
	// Loading: the engine module is being fetched and compiled.
	Loading State = iota
	// WarmingUp: the engine's thread pool is starting.
	WarmingUp
	// Ready: the engine instance exists and requests are served.
	Ready
	// Terminated is final.
	Terminated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case WarmingUp:
		return "warming_up"
	case Ready:
		return "ready"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}
