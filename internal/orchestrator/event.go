package orchestrator

import (
	"github.com/sshdock/sshdock/internal/classify"
	"github.com/sshdock/sshdock/internal/session"
)

type EventKind int

const (
	EventMounted EventKind = iota
	EventUnmounted
	EventStatus
	EventError
	EventNavigated
)

func (k EventKind) String() string {
	switch k {
	case EventMounted:
		return "mounted"
	case EventUnmounted:
		return "unmounted"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	case EventNavigated:
		return "navigated"
	}
	return "unknown"
}

// Event is a lifecycle notification for the UI.
type Event struct {
	Kind       EventKind
	SessionID  string
	Status     session.ConnectionStatus
	Descriptor classify.Descriptor
	Route      string
}
