package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/altsrc/sourced"
)

// Engine folds events into one projection's state with durable
// checkpointing. State and checkpoint are persisted together
// (state-then-checkpoint) so the projection never reports having consumed
// an event it has not also reflected in its persisted state.
//
// Engine implements dispatch.Sink via Deliver, so it can be registered as
// a channel sink on the event dispatcher.
type Engine[S any] struct {
	def         Definition[S]
	states      StateStore[S]
	checkpoints CheckpointStore
	every       uint64
	log         *slog.Logger

	mu        sync.Mutex
	status    Status
	state     S
	position  uint64
	unflushed uint64
	types     map[string]struct{}
	failure   error
}

// Option configures an Engine.
type Option[S any] func(*Engine[S])

// WithCheckpointEvery throttles persistence to every n folded events,
// trading off how many events must be re-applied after a crash. Default is
// 1 (persist on every fold).
func WithCheckpointEvery[S any](n uint64) Option[S] {
	return func(e *Engine[S]) {
		if n > 0 {
			e.every = n
		}
	}
}

// WithLogger sets the engine logger. Default discards all output.
func WithLogger[S any](log *slog.Logger) Option[S] {
	return func(e *Engine[S]) {
		e.log = log
	}
}

// New constructs a projection engine from a definition and its stores. The
// definition is validated eagerly: name, initial state and fold function
// are mandatory.
func New[S any](
	def Definition[S],
	states StateStore[S],
	checkpoints CheckpointStore,
	opts ...Option[S],
) (*Engine[S], error) {
	if def.Name == "" {
		return nil, &sourced.ConfigError{Err: fmt.Errorf("projection name must be provided")}
	}

	if def.InitialState == nil {
		return nil, &sourced.ConfigError{Err: fmt.Errorf("projection %q: initial state must be provided", def.Name)}
	}

	if def.Fold == nil {
		return nil, &sourced.ConfigError{Err: fmt.Errorf("projection %q: fold function must be provided", def.Name)}
	}

	if states == nil || checkpoints == nil {
		return nil, &sourced.ConfigError{Err: fmt.Errorf("projection %q: state and checkpoint stores must be provided", def.Name)}
	}

	types := make(map[string]struct{}, len(def.EventTypes))

	for _, t := range def.EventTypes {
		types[t] = struct{}{}
	}

	e := Engine[S]{
		def:         def,
		states:      states,
		checkpoints: checkpoints,
		every:       1,
		log:         slog.New(slog.DiscardHandler),
		types:       types,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return &e, nil
}

// Name returns the projection name.
func (e *Engine[S]) Name() string { return e.def.Name }

// EventTypes returns the declared event type tags.
func (e *Engine[S]) EventTypes() []string { return e.def.EventTypes }

// Status returns the current lifecycle status.
func (e *Engine[S]) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status
}

// Checkpoint returns the last durably stored checkpoint position.
func (e *Engine[S]) Checkpoint() Checkpoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Checkpoint{
		Projection: e.def.Name,
		Position:   e.position - e.unflushed,
	}
}

// Start forces initialization, restoring persisted state and checkpoint if
// present. It is safe to call multiple times; State and Apply initialize
// lazily anyway.
func (e *Engine[S]) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusFailed {
		return e.failedErr()
	}

	return e.load(ctx)
}

// State returns the projection state. On first call it loads persisted
// state and checkpoint if present, otherwise initializes the state from
// the definition, and transitions to ready.
func (e *Engine[S]) State(ctx context.Context) (S, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero S

	if e.status == StatusFailed {
		return zero, e.failedErr()
	}

	if err := e.load(ctx); err != nil {
		return zero, err
	}

	return e.state, nil
}

// Apply folds one event into the projection. Events whose type is not
// declared are ignored: the state is returned unchanged and no checkpoint
// is written. A fold failure transitions the projection to failed and it
// stops consuming further events until Reset or Rebuild.
func (e *Engine[S]) Apply(ctx context.Context, evt sourced.Event) (S, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero S

	if e.status == StatusFailed {
		return zero, e.failedErr()
	}

	if err := e.load(ctx); err != nil {
		return zero, err
	}

	if !e.wants(evt.Type) {
		return e.state, nil
	}

	e.status = StatusFolding
	defer func() {
		if e.status == StatusFolding {
			e.status = StatusReady
		}
	}()

	if err := e.fold(ctx, evt); err != nil {
		return zero, err
	}

	if e.unflushed >= e.every {
		if err := e.flush(ctx); err != nil {
			return zero, err
		}
	}

	return e.state, nil
}

// Deliver makes the engine usable as a dispatcher channel sink.
func (e *Engine[S]) Deliver(ctx context.Context, evt sourced.Event) error {
	_, err := e.Apply(ctx, evt)

	return err
}

// Rebuild discards current state and checkpoint, reinitializes and folds
// the entire event source in order through the same fold function used for
// incremental folding. The source must be a lazy, finite sequence; it is
// consumed once.
func (e *Engine[S]) Rebuild(ctx context.Context, src EventSource) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = StatusRebuilding

	e.log.InfoContext(ctx, "rebuilding projection", slog.String("projection", e.def.Name))

	if err := e.clear(ctx); err != nil {
		e.status = StatusFailed
		e.failure = err

		return err
	}

	e.state = e.def.InitialState()
	e.position = 0
	e.unflushed = 0

	for evt, err := range src.Events(ctx) {
		if err != nil {
			e.status = StatusFailed
			e.failure = fmt.Errorf("reading event source: %w", err)

			return e.failure
		}

		if !e.wants(evt.Type) {
			continue
		}

		if err := e.fold(ctx, evt); err != nil {
			return err
		}

		if e.unflushed >= e.every {
			if err := e.flush(ctx); err != nil {
				return err
			}
		}
	}

	if err := e.flush(ctx); err != nil {
		return err
	}

	e.status = StatusReady

	e.log.InfoContext(ctx, "projection rebuilt",
		slog.String("projection", e.def.Name),
		slog.Uint64("position", e.position),
	)

	return nil
}

// CatchUp folds events from a source that delivers events strictly after
// the current checkpoint position, eg. a store subscription opened at the
// checkpoint. Unlike Rebuild it keeps the loaded state.
func (e *Engine[S]) CatchUp(ctx context.Context, src EventSource) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusFailed {
		return e.failedErr()
	}

	if err := e.load(ctx); err != nil {
		return err
	}

	e.status = StatusFolding

	for evt, err := range src.Events(ctx) {
		if err != nil {
			e.status = StatusFailed
			e.failure = fmt.Errorf("reading event source: %w", err)

			return e.failure
		}

		if !e.wants(evt.Type) {
			continue
		}

		if err := e.fold(ctx, evt); err != nil {
			return err
		}

		if e.unflushed >= e.every {
			if err := e.flush(ctx); err != nil {
				return err
			}
		}
	}

	if err := e.flush(ctx); err != nil {
		return err
	}

	e.status = StatusReady

	return nil
}

// Reset clears persisted state and checkpoint without replaying anything.
// The next State call reinitializes from the definition. Reset also clears
// a failed status.
func (e *Engine[S]) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.clear(ctx); err != nil {
		return err
	}

	var zero S

	e.state = zero
	e.position = 0
	e.unflushed = 0
	e.failure = nil
	e.status = StatusUninitialized

	return nil
}

// load lazily restores persisted state and checkpoint. Caller holds e.mu.
func (e *Engine[S]) load(ctx context.Context) error {
	if e.status != StatusUninitialized {
		return nil
	}

	e.status = StatusLoading

	state, ok, err := e.states.Load(ctx, e.def.Name)
	if err != nil {
		e.status = StatusFailed
		e.failure = fmt.Errorf("loading projection state: %w", err)

		return e.failure
	}

	if ok {
		e.state = state

		cp, found, err := e.checkpoints.Load(ctx, e.def.Name)
		if err != nil {
			e.status = StatusFailed
			e.failure = fmt.Errorf("loading checkpoint: %w", err)

			return e.failure
		}

		if found {
			e.position = cp.Position
		}
	} else {
		e.state = e.def.InitialState()
	}

	e.status = StatusReady

	e.log.DebugContext(ctx, "projection loaded",
		slog.String("projection", e.def.Name),
		slog.Uint64("position", e.position),
		slog.Bool("restored", ok),
	)

	return nil
}

// fold advances the in-memory state by one event. Caller holds e.mu.
func (e *Engine[S]) fold(ctx context.Context, evt sourced.Event) error {
	next, err := e.def.Fold(e.state, evt)
	if err != nil {
		e.status = StatusFailed
		e.failure = &FoldError{
			Projection: e.def.Name,
			EventType:  evt.Type,
			EventID:    evt.ID,
			Err:        err,
		}

		e.log.ErrorContext(ctx, "projection fold failed",
			slog.String("projection", e.def.Name),
			slog.String("event_type", evt.Type),
			slog.String("event_id", evt.ID),
			slog.Any("error", err),
		)

		return e.failure
	}

	e.state = next
	e.position++
	e.unflushed++

	return nil
}

// flush persists state first, then the checkpoint. Caller holds e.mu.
func (e *Engine[S]) flush(ctx context.Context) error {
	if e.unflushed == 0 {
		return nil
	}

	if err := e.states.Save(ctx, e.def.Name, e.state); err != nil {
		e.status = StatusFailed
		e.failure = fmt.Errorf("saving projection state: %w", err)

		return e.failure
	}

	cp := Checkpoint{
		Projection: e.def.Name,
		Position:   e.position,
		SavedAt:    time.Now().UTC(),
	}

	if err := e.checkpoints.Save(ctx, e.def.Name, cp); err != nil {
		e.status = StatusFailed
		e.failure = fmt.Errorf("saving checkpoint: %w", err)

		return e.failure
	}

	e.unflushed = 0

	return nil
}

// clear removes persisted state and checkpoint. Caller holds e.mu.
func (e *Engine[S]) clear(ctx context.Context) error {
	if err := e.states.Delete(ctx, e.def.Name); err != nil {
		return fmt.Errorf("deleting projection state: %w", err)
	}

	if err := e.checkpoints.Delete(ctx, e.def.Name); err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}

	return nil
}

func (e *Engine[S]) wants(eventType string) bool {
	if len(e.types) == 0 {
		return true
	}

	_, ok := e.types[eventType]

	return ok
}

func (e *Engine[S]) failedErr() error {
	return fmt.Errorf("%w: %v", ErrFailed, e.failure)
}
