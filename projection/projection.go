// Package projection derives read-optimized state from the event stream by
// folding events one at a time, persisting checkpoints for resumable
// progress and supporting full rebuilds from a replay source.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/altsrc/sourced"
)

var (
	// ErrFailed indicates the projection entered the failed state after an
	// unrecoverable fold error and stopped consuming events. Reset or
	// Rebuild clears it.
	ErrFailed = errors.New("projection is in failed state")
)

// Status is the projection lifecycle state.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusReady
	StatusFolding
	StatusRebuilding
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFolding:
		return "folding"
	case StatusRebuilding:
		return "rebuilding"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Checkpoint is a durable marker of how far a projection has consumed the
// event stream. It is only advanced after the corresponding state is
// durably stored.
type Checkpoint struct {
	Projection string
	Position   uint64
	SavedAt    time.Time
}

// StateStore persists projection state, keyed by projection name. Each
// projection exclusively owns its state; serialization is the store's
// responsibility.
type StateStore[S any] interface {
	Load(ctx context.Context, name string) (S, bool, error)
	Save(ctx context.Context, name string, state S) error
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}

// CheckpointStore persists projection checkpoints, keyed by projection
// name.
type CheckpointStore interface {
	Load(ctx context.Context, name string) (Checkpoint, bool, error)
	Save(ctx context.Context, name string, cp Checkpoint) error
	Delete(ctx context.Context, name string) error
}

// Definition declares a projection: its name, the event types it folds,
// its initial state and the fold function. The fold function must be
// deterministic - folding the same ordered event sequence always yields
// the same state, whether it arrives incrementally or via rebuild.
type Definition[S any] struct {
	// Name identifies the projection in state and checkpoint stores.
	Name string

	// EventTypes lists the event type tags the projection folds. Events
	// of other types are ignored without a checkpoint write. Empty means
	// every event is folded.
	EventTypes []string

	// InitialState produces the zero read model.
	InitialState func() S

	// Fold advances the state by one event.
	Fold func(state S, evt sourced.Event) (S, error)
}

// FoldError wraps a fold function failure for a specific event.
type FoldError struct {
	Projection string
	EventType  string
	EventID    string
	Err        error
}

func (e *FoldError) Error() string {
	return fmt.Sprintf("projection %q: folding %q event %s: %v",
		e.Projection, e.EventType, e.EventID, e.Err)
}

func (e *FoldError) Unwrap() error { return e.Err }
