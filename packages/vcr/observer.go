package vcr

import "time"

// Kind is the outcome of an intercepted request.
type Kind string

const (
	KindHit         Kind = "hit"
	KindMiss        Kind = "miss"
	KindRecord      Kind = "record"
	KindLive        Kind = "live"
	KindPassthrough Kind = "passthrough"
	KindError       Kind = "error"
)

// Event describes one handled request.
type Event struct {
	RequestID  string
	Kind       Kind
	Mode       Mode
	Method     string
	URL        string
	Fixture    string
	StatusCode int
	Duration   time.Duration
	Err        error
	Time       time.Time
}

// Observer receives an Event for every request. Observe is called on the
// request's goroutine and must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}
