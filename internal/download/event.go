package download

import "github.com/tanq16/vidgrab/internal/broadcast"

type EventKind int

const (
	StateChanged EventKind = iota
	ProgressChanged
)

func (k EventKind) String() string {
	if k == ProgressChanged {
		return "progress"
	}
	return "state"
}

// Event is pushed to subscribers. State events carry State, plus Err for
// Failed and Cancelled. Progress events carry Progress and Downloaded.
type Event struct {
	Kind       EventKind
	State      State
	Progress   int
	Downloaded int64
	Err        error
}

// Subscription is an ordered stream of one task's events. Its channel closes
// after the terminal state event or after Close.
type Subscription = broadcast.Subscription[Event]
