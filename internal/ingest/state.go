package ingest

// State is the coordinator lifecycle state. Transitions:
// INIT -> {FRESH, RESUME} -> RUNNING -> DONE.
type State int

// Coordinator states.
const (
	StateInit State = iota
	StateFresh
	StateResume
	StateRunning
	StateDone
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFresh:
		return "fresh"
	case StateResume:
		return "resume"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
