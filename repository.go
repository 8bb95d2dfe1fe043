package sourced

import (
	"context"
	"fmt"
)

// Aggregate is the narrow view of a versioned aggregate the repository
// needs in order to run the save protocol. aggregate.Root implements it.
type Aggregate interface {
	// StringID returns the aggregate identity.
	StringID() string

	// InitialVersion returns the version the aggregate was loaded at
	// (0 for a brand-new aggregate).
	InitialVersion() uint64

	// PendingEvents returns the ordered events applied since load that
	// have not been persisted yet. It does not clear the list.
	PendingEvents() []Event

	// Commit clears pending events and advances the initial version.
	// Called by the repository once persistence succeeded.
	Commit()
}

// VersionStore reads the currently persisted version of an aggregate.
// Implementations must report 0 for aggregates that have no events stored.
type VersionStore interface {
	CurrentVersion(ctx context.Context, aggregateID string) (uint64, error)
}

// EventHandler turns a single committed event into a storage mutation.
// Handlers are invoked sequentially, in event order, and must be safe under
// partial application since an aborted save performs no rollback.
type EventHandler func(ctx context.Context, evt Event) error

// EventDispatcher routes committed events to registered delivery channels.
// dispatch.Dispatcher satisfies it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []Event) error
}

// Saver is the aggregate persistence contract exposed by Repository.
type Saver interface {
	Save(ctx context.Context, agg Aggregate) error
}

// Repository persists an aggregate's pending events one at a time through
// type-keyed handlers, enforcing optimistic concurrency against a version
// store. The per-event-type handler table keeps the repository decoupled
// from aggregate internals - it only knows how to turn one event payload
// into a storage mutation.
type Repository struct {
	versions   VersionStore
	dispatcher EventDispatcher
	handlers   map[string]EventHandler
}

// RepositoryOption configures a Repository upon construction.
type RepositoryOption func(*Repository) error

// WithDispatcher wires an event dispatcher which receives committed events
// after every successful save.
func WithDispatcher(d EventDispatcher) RepositoryOption {
	return func(r *Repository) error {
		r.dispatcher = d

		return nil
	}
}

// WithDeclaredEvents eagerly verifies that the handler table covers every
// declared payload type, so a missing handler fails at startup rather than
// at first occurrence.
func WithDeclaredEvents(payloads ...any) RepositoryOption {
	return func(r *Repository) error {
		for _, payload := range payloads {
			name := TypeName(payload)

			if _, ok := r.handlers[name]; !ok {
				return &ConfigError{EventType: name, Err: ErrMissingHandler}
			}
		}

		return nil
	}
}

// NewRepository constructs a repository from a version store and a handler
// table mapping event type tags to handlers. Nil table entries are rejected
// immediately.
func NewRepository(versions VersionStore, handlers map[string]EventHandler, opts ...RepositoryOption) (*Repository, error) {
	if versions == nil {
		return nil, &ConfigError{Err: fmt.Errorf("version store must be provided")}
	}

	table := make(map[string]EventHandler, len(handlers))

	for name, handler := range handlers {
		if handler == nil {
			return nil, &ConfigError{EventType: name, Err: fmt.Errorf("nil handler")}
		}

		table[name] = handler
	}

	r := Repository{
		versions: versions,
		handlers: table,
	}

	for _, opt := range opts {
		if err := opt(&r); err != nil {
			return nil, err
		}
	}

	return &r, nil
}

// Save persists the aggregate's pending events.
//
// The protocol is:
//  1. No pending events - return immediately without touching the store.
//  2. Read the persisted version and compare it to the version the
//     aggregate was loaded at. A mismatch is a terminal ConflictError.
//  3. Apply each pending event, in order, through its type-keyed handler.
//     A missing handler is a ConfigError; a handler failure aborts the
//     remaining events. Already-applied handlers are not undone.
//  4. Hand the committed events to the dispatcher, then commit the
//     aggregate.
//
// A dispatch failure does not roll back persistence - the events are
// already durable at that point - so the aggregate is committed and the
// collected dispatch error is returned.
func (r *Repository) Save(ctx context.Context, agg Aggregate) error {
	pending := agg.PendingEvents()

	if len(pending) == 0 {
		return nil
	}

	current, err := r.versions.CurrentVersion(ctx, agg.StringID())
	if err != nil {
		return fmt.Errorf("reading persisted version: %w", err)
	}

	if current != agg.InitialVersion() {
		return &ConflictError{
			AggregateID: agg.StringID(),
			Expected:    agg.InitialVersion(),
			Actual:      current,
		}
	}

	for _, evt := range pending {
		handler, ok := r.handlers[evt.Type]
		if !ok {
			return &ConfigError{EventType: evt.Type, Err: ErrMissingHandler}
		}

		if err := handler(ctx, evt); err != nil {
			return &HandlerError{
				EventType: evt.Type,
				EventID:   evt.ID,
				Err:       err,
			}
		}
	}

	var dispatchErr error

	if r.dispatcher != nil {
		dispatchErr = r.dispatcher.Dispatch(ctx, pending)
	}

	agg.Commit()

	return dispatchErr
}
