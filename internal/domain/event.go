package domain

import (
	"fmt"
	"time"
)

// EventKind classifies journal entries
type EventKind string

const (
	EventLightOn  EventKind = "light_on"
	EventLightOff EventKind = "light_off"
	EventCapture  EventKind = "image_captured"
)

// Event is one actuation or capture recorded in the journal. Readings are
// never journaled; only things the operator or the interlock did.
type Event struct {
	ID        int64
	Kind      EventKind
	Light     LightName // empty for captures
	Detail    string
	Timestamp time.Time
}

// NewLightEvent records a light transition. autoOff is the scheduled
// deferred-off delay, zero when none was scheduled.
func NewLightEvent(name LightName, on bool, autoOff time.Duration, source string) *Event {
	kind := EventLightOff
	detail := source
	if on {
		kind = EventLightOn
		if autoOff > 0 {
			detail = fmt.Sprintf("%s; auto-off in %s", source, autoOff)
		}
	}

	return &Event{
		Kind:      kind,
		Light:     name,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// NewCaptureEvent records a captured image file
func NewCaptureEvent(filename string) *Event {
	return &Event{
		Kind:      EventCapture,
		Detail:    filename,
		Timestamp: time.Now(),
	}
}
