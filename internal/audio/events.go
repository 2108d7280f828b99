package audio

import "time"

// EventType classifies playback lifecycle events.
type EventType int

const (
	// EventStarted is emitted when the first frame is about to stream.
	EventStarted EventType = iota
	// EventFinished is emitted after a clean end of stream.
	EventFinished
	// EventFailed is emitted exactly once for every accepted request that
	// fails at runtime.
	EventFailed
	// EventCancelled is emitted for the in-flight request when StopAll
	// interrupts it.
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventFinished:
		return "finished"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event describes something that happened to a request.
type Event struct {
	Type    EventType
	Request Request
	// Err is set for EventFailed and is always an *Error.
	Err error
	At  time.Time
}

// Listener receives events on the session's worker goroutine. Listeners that
// do slow work should hand it off to their own goroutine.
type Listener interface {
	Handle(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) Handle(ev Event) {
	f(ev)
}
