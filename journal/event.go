// Package journal records controller events as a machine-readable trace.
//
// It is separate from operational logging (slog): a journal captures every
// session transition, request and completion so a misbehaving camera can be
// replayed and inspected after the fact.
//
//	// console while developing
//	cfg.Journal = journal.NewSlogSink(slog.Default())
//
//	// binary file
//	w, _ := journal.Create("/tmp/icbrowse.icj")
//	cfg.Journal = journal.Multi(journal.NewSlogSink(slog.Default()), w)
//
// Files are a stream of CBOR-encoded Events with integer keys.
package journal

import (
	"strings"
	"time"
)

// Event is one journal entry. Exactly one payload pointer is set.
type Event struct {
	Timestamp  time.Time `cbor:"1,keyasint"`
	Kind       Kind      `cbor:"2,keyasint"`
	DeviceID   string    `cbor:"3,keyasint,omitempty"`
	DeviceName string    `cbor:"4,keyasint,omitempty"`

	State   *StateChange `cbor:"10,keyasint,omitempty"`
	Request *Request     `cbor:"11,keyasint,omitempty"`
	Error   *ErrorData   `cbor:"12,keyasint,omitempty"`
	Browser *BrowserData `cbor:"13,keyasint,omitempty"`
}

// Kind classifies an Event.
type Kind uint8

const (
	KindState Kind = iota
	KindRequest
	KindError
	KindBrowser
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "STATE"
	case KindRequest:
		return "REQUEST"
	case KindError:
		return "ERROR"
	case KindBrowser:
		return "BROWSER"
	default:
		return "UNKNOWN"
	}
}

// ParseKind accepts a Kind name in any case ("state", "REQUEST").
func ParseKind(s string) (Kind, bool) {
	for k := KindState; k <= KindBrowser; k++ {
		if strings.EqualFold(s, k.String()) {
			return k, true
		}
	}
	return 0, false
}

// StateChange records a session state transition.
type StateChange struct {
	From  string `cbor:"1,keyasint"`
	To    string `cbor:"2,keyasint"`
	Cause string `cbor:"3,keyasint,omitempty"`
}

// Phase is where a request is in its lifetime.
type Phase uint8

const (
	PhaseStart Phase = iota
	PhaseDone
	PhaseTimeout
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "START"
	case PhaseDone:
		return "DONE"
	case PhaseTimeout:
		return "TIMEOUT"
	case PhaseCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Request records one asynchronous device request.
type Request struct {
	Op       string        `cbor:"1,keyasint"`
	Phase    Phase         `cbor:"2,keyasint"`
	Token    uint64        `cbor:"3,keyasint,omitempty"`
	Duration time.Duration `cbor:"4,keyasint,omitempty"`
	Err      string        `cbor:"5,keyasint,omitempty"`
}

// ErrorData records an error that reached the error handler.
type ErrorData struct {
	Message string `cbor:"1,keyasint"`
	Context string `cbor:"2,keyasint,omitempty"`
}

// BrowserData records a device arriving or leaving.
type BrowserData struct {
	Added     bool   `cbor:"1,keyasint"`
	Transport string `cbor:"2,keyasint,omitempty"`
	More      bool   `cbor:"3,keyasint,omitempty"`
}

// Sink receives journal events. Implementations must be safe for concurrent
// use and should return quickly.
type Sink interface {
	Record(Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Record(Event) {}

var _ Sink = Nop{}

type multi []Sink

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Record(e Event) {
	for _, s := range m {
		s.Record(e)
	}
}
