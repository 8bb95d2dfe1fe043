package projection

import (
	"context"
	"iter"

	"github.com/altsrc/sourced"
)

// EventSource is a lazy, finite, restartable sequence of events used for
// rebuilds and catch-up. Each call to Events starts a fresh pass; a single
// pass is consumed at most once per rebuild invocation.
type EventSource interface {
	Events(ctx context.Context) iter.Seq2[sourced.Event, error]
}

// SliceSource adapts an in-memory event slice to EventSource.
type SliceSource []sourced.Event

// Events implements EventSource.
func (s SliceSource) Events(ctx context.Context) iter.Seq2[sourced.Event, error] {
	return func(yield func(sourced.Event, error) bool) {
		for _, evt := range s {
			if ctx.Err() != nil {
				yield(sourced.Event{}, ctx.Err())

				return
			}

			if !yield(evt, nil) {
				return
			}
		}
	}
}

// SourceFunc adapts a function to EventSource.
type SourceFunc func(ctx context.Context) iter.Seq2[sourced.Event, error]

// Events implements EventSource.
func (f SourceFunc) Events(ctx context.Context) iter.Seq2[sourced.Event, error] {
	return f(ctx)
}
