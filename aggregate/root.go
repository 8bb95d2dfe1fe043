// Package aggregate provides a reusable event sourcing friendly aggregate
// base type which buffers uncommitted events, tracks versions for the
// optimistic concurrency check and routes events through explicitly
// registered in-memory reactions.
package aggregate

import (
	"fmt"

	"github.com/altsrc/sourced"
)

var (
	// ErrNotBound is the panic value when Apply or Replay is called before
	// Bind registered the aggregate identity and reactions.
	ErrNotBound = fmt.Errorf("aggregate needs to be bound first")

	// ErrDuplicateReaction is the panic value when two reactions are
	// registered for the same event type.
	ErrDuplicateReaction = fmt.Errorf("duplicate reaction for event type")
)

// Root is the embeddable aggregate base. It owns the pending event list
// exclusively until the repository commits it, and never performs I/O.
//
//	type Account struct {
//		aggregate.Root[ID]
//
//		balance int
//	}
type Root[T fmt.Stringer] struct {
	id             T
	initialVersion uint64
	version        uint64
	pending        []sourced.Event
	reactions      map[string]Reaction
}

// Bind sets the aggregate identity and registers its reactions. It must be
// called exactly once, before any Apply or Replay. Registering two
// reactions for the same event type is a wiring defect and panics.
func (r *Root[T]) Bind(id T, reactions ...Reaction) {
	r.id = id
	r.reactions = make(map[string]Reaction, len(reactions))

	for _, reaction := range reactions {
		name := reaction.eventType()

		if _, exists := r.reactions[name]; exists {
			panic(fmt.Errorf("%w: %s", ErrDuplicateReaction, name))
		}

		r.reactions[name] = reaction
	}
}

// Replay rehydrates the aggregate from its stored event stream. Replayed
// events run through bound reactions but are not added to the pending list;
// the initial version advances to the stream length.
func (r *Root[T]) Replay(events ...sourced.Event) {
	if r.reactions == nil {
		panic(ErrNotBound)
	}

	for _, evt := range events {
		r.react(evt)

		if evt.Version > 0 {
			r.version = evt.Version
		} else {
			r.version++
		}
	}

	r.initialVersion = r.version
}

// Apply records a new domain fact: the payload is wrapped in an Event
// stamped with the next version, appended to the pending list and run
// through its reaction if one is bound.
func (r *Root[T]) Apply(payload any, opts ...sourced.EventOption) {
	if r.reactions == nil {
		panic(ErrNotBound)
	}

	evt := sourced.NewEvent(r.id.String(), r.version+1, payload, opts...)

	r.pending = append(r.pending, evt)
	r.version = evt.Version

	r.react(evt)
}

func (r *Root[T]) react(evt sourced.Event) {
	if reaction, ok := r.reactions[evt.Type]; ok {
		reaction.react(evt.Payload)
	}
}

// Commit clears the pending list and advances the initial version to the
// current one. It is called by the repository after durable persistence
// succeeded; committing with no pending events is a no-op.
func (r *Root[T]) Commit() {
	if len(r.pending) == 0 {
		return
	}

	r.pending = nil
	r.initialVersion = r.version
}

// PendingEvents returns the ordered uncommitted events. The list is not
// cleared - that happens on Commit.
func (r *Root[T]) PendingEvents() []sourced.Event {
	if r.pending == nil {
		return []sourced.Event{}
	}

	return r.pending
}

// ID returns the typed aggregate identity.
func (r *Root[T]) ID() T { return r.id }

// SetID sets the aggregate identity, typically from the opening event's
// reaction during rehydration.
func (r *Root[T]) SetID(id T) { r.id = id }

// StringID returns the aggregate identity as used by stores and streams.
func (r *Root[T]) StringID() string { return r.id.String() }

// InitialVersion returns the version observed when the aggregate was
// loaded; the repository compares it against the persisted version.
func (r *Root[T]) InitialVersion() uint64 { return r.initialVersion }

// Version returns the current in-memory version (initial version plus the
// number of events applied since load).
func (r *Root[T]) Version() uint64 { return r.version }
