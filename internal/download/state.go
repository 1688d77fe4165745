package download

// State is the lifecycle position of a Task.
type State int

const (
	Initialized State = iota
	Downloading
	Paused
	Finished
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Downloading:
		return "downloading"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) IsTerminal() bool {
	return s == Finished || s == Failed || s == Cancelled
}

// CanTransition reports whether a task in state s may move to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case Initialized:
		return next == Downloading || next == Failed || next == Cancelled
	case Downloading:
		return next == Paused || next == Finished || next == Failed || next == Cancelled
	case Paused:
		return next == Downloading || next == Cancelled
	default:
		return false
	}
}
