package physics

import (
	"time"

	"sphere-field/internal/geom"
)

// EventType classifies a log entry.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeContact           // applied boundary or body contact
	EventTypeExchange          // elastic velocity exchange between two bodies
	EventTypePlacementExhausted
	EventTypeFault // recovered worker panic
)

func (t EventType) String() string {
	switch t {
	case EventTypeContact:
		return "contact"
	case EventTypeExchange:
		return "exchange"
	case EventTypePlacementExhausted:
		return "placement_exhausted"
	case EventTypeFault:
		return "fault"
	default:
		return "unknown"
	}
}

// MarshalText writes the type by name in JSON output.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ContactEvent is one line of the contact log.
type ContactEvent struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Sequence  uint64    `json:"sequence"`
	Step      uint64    `json:"step"`
	Body      Handle    `json:"body"`
	Kind      string    `json:"kind,omitempty"`
	Side      string    `json:"side,omitempty"`
	Other     *Handle   `json:"other,omitempty"`
	T         float32   `json:"t"`
	X         float32   `json:"x"`
	Y         float32   `json:"y"`
	Detail    string    `json:"detail,omitempty"`
}

// newContactEvent builds the log entry for an applied collision.
func newContactEvent(step uint64, h Handle, c Collision) ContactEvent {
	ev := ContactEvent{
		Type:      EventTypeContact,
		Timestamp: time.Now().UnixNano(),
		Step:      step,
		Body:      h,
		Kind:      c.Kind.String(),
		T:         c.T,
		X:         c.Contact[0],
		Y:         c.Contact[1],
	}
	switch c.Kind {
	case HitPlane:
		ev.Side = c.Side.String()
	case HitBody:
		other := c.Other
		ev.Other = &other
	}
	return ev
}

func newExchangeEvent(step uint64, a, b Handle, at geom.Vec2) ContactEvent {
	other := b
	return ContactEvent{
		Type:      EventTypeExchange,
		Timestamp: time.Now().UnixNano(),
		Step:      step,
		Body:      a,
		Kind:      HitBody.String(),
		Other:     &other,
		X:         at[0],
		Y:         at[1],
	}
}

func newFaultEvent(step uint64, h Handle, detail string) ContactEvent {
	return ContactEvent{
		Type:      EventTypeFault,
		Timestamp: time.Now().UnixNano(),
		Step:      step,
		Body:      h,
		Detail:    detail,
	}
}
