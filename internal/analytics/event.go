package analytics

import (
	"errors"
	"time"
)

// EventType distinguishes statistics events.
type EventType string

const (
	EventLinkCreated EventType = "LinkCreated"
	EventRedirect    EventType = "Redirect"
)

// Event is a single statistics event.
type Event struct {
	EventType EventType `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Alias     string    `json:"alias"`
}

// NewLinkCreated builds the event emitted after an alias is created.
func NewLinkCreated(alias string, at time.Time) Event {
	return Event{EventType: EventLinkCreated, Timestamp: at.UTC(), Alias: alias}
}

// NewRedirect builds the event emitted for a served redirect.
func NewRedirect(alias string, at time.Time) Event {
	return Event{EventType: EventRedirect, Timestamp: at.UTC(), Alias: alias}
}

// EventKey routes events by alias.
func EventKey(e *Event) string {
	return e.Alias
}

var errInvalidEvent = errors.New("invalid statistics event")

// Validate rejects events that cannot be aggregated.
func (e *Event) Validate() error {
	if e.Alias == "" || e.Timestamp.IsZero() {
		return errInvalidEvent
	}

	switch e.EventType {
	case EventLinkCreated, EventRedirect:
		return nil
	default:
		return errInvalidEvent
	}
}
