package search

import (
	"net/url"

	"github.com/google/uuid"
)

// Token identifies one issued request. Completions carrying any other token
// are stale and ignored.
type Token uuid.UUID

func newToken() Token {
	return Token(uuid.New())
}

// String returns the canonical UUID form.
func (t Token) String() string {
	return uuid.UUID(t).String()
}

// IsZero reports whether t is the zero token, which is never issued.
func (t Token) IsZero() bool {
	return uuid.UUID(t) == uuid.Nil
}

// State is the fetch state. Exactly one of Idle, InFlight, Exhausted or Failed
// is active at a time; consumers switch on the concrete type.
type State interface {
	isState()
	String() string
}

// Idle means no request is outstanding. A nil Pending means no further page
// is known, either because no search has started or because the state was
// reset.
type Idle struct {
	Pending *url.URL
}

// InFlight means a request is outstanding.
type InFlight struct {
	Token Token
	URL   *url.URL
}

// Exhausted means the last page has been applied.
type Exhausted struct{}

// Failed means the last fetch failed. URL is the request that failed and is
// what Retry issues again.
type Failed struct {
	Err *FetchError
	URL *url.URL
}

func (Idle) isState()      {}
func (InFlight) isState()  {}
func (Exhausted) isState() {}
func (Failed) isState()    {}

func (s Idle) String() string {
	if s.Pending == nil {
		return "idle"
	}
	return "idle(next=" + s.Pending.String() + ")"
}

func (s InFlight) String() string {
	return "in_flight(" + s.Token.String() + ")"
}

func (Exhausted) String() string {
	return "exhausted"
}

func (s Failed) String() string {
	return "failed(" + s.Kind().String() + ")"
}

// Kind returns the failure classification.
func (s Failed) Kind() ErrorKind {
	if s.Err == nil {
		return 0
	}
	return s.Err.Kind
}

// Label returns a short, stable name for the state, suitable for metrics
// labels and log fields.
func Label(s State) string {
	switch s.(type) {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	case nil:
		return "none"
	default:
		panic("search: unknown state type")
	}
}
