// Package sourced provides event-sourced persistence for domain aggregates:
// state changes are recorded as an ordered sequence of immutable events,
// new events are persisted under optimistic concurrency and committed events
// are routed to registered delivery channels.
// Derived read models are maintained by the projection subpackage.
package sourced

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable fact describing a change that happened to an
// aggregate. Once created (via NewEvent or aggregate Apply) an Event is
// never mutated - it is passed by value throughout.
type Event struct {
	// ID uniquely identifies the event.
	ID string

	// Type is the string tag identifying the payload's shape.
	Type string

	// Payload holds the type-specific event data.
	Payload any

	// AggregateID identifies the aggregate the event belongs to.
	AggregateID string

	// Version is the aggregate version this event produced.
	Version uint64

	// OccurredOn is the time the event was recorded.
	OccurredOn time.Time

	// CorrelationID optionally ties the event to the request or
	// process that caused it.
	CorrelationID string

	// Meta is an optional bag of additional metadata.
	Meta map[string]string
}

// EventOption configures an Event upon creation.
type EventOption func(*Event)

// WithCorrelationID sets the event correlation id.
func WithCorrelationID(id string) EventOption {
	return func(evt *Event) {
		evt.CorrelationID = id
	}
}

// WithMeta attaches additional metadata to the event.
func WithMeta(meta map[string]string) EventOption {
	return func(evt *Event) {
		evt.Meta = meta
	}
}

// WithOccurredOn overrides the event timestamp (eg. when importing
// historical events).
func WithOccurredOn(t time.Time) EventOption {
	return func(evt *Event) {
		evt.OccurredOn = t
	}
}

// NewEvent constructs an event for the given aggregate and version with the
// type tag derived from the payload's concrete type.
func NewEvent(aggregateID string, version uint64, payload any, opts ...EventOption) Event {
	evt := Event{
		ID:          uuid.NewString(),
		Type:        TypeName(payload),
		Payload:     payload,
		AggregateID: aggregateID,
		Version:     version,
		OccurredOn:  time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&evt)
	}

	return evt
}

// TypeName returns the string tag for an event payload, derived from its
// concrete Go type name. Pointer payloads resolve to their element type so
// that *FooHappened and FooHappened share a tag.
func TypeName(payload any) string {
	t := reflect.TypeOf(payload)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}
