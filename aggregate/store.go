package aggregate

import (
	"context"

	"github.com/altsrc/sourced"
)

// Rooter is implemented by aggregates embedding Root.
type Rooter interface {
	sourced.Aggregate

	Replay(events ...sourced.Event)
}

// EventReader reads the stored event stream of a single aggregate, oldest
// first. gormstore.Store implements it.
type EventReader interface {
	ReadStream(ctx context.Context, aggregateID string) ([]sourced.Event, error)
}

// Load reads an aggregate's stored stream and rehydrates a fresh instance
// produced by the factory. The factory must return a bound, zero-state
// aggregate; Load replays the stream on top of it.
func Load[A Rooter](ctx context.Context, reader EventReader, id string, factory func() A) (A, error) {
	var zero A

	events, err := reader.ReadStream(ctx, id)
	if err != nil {
		return zero, err
	}

	agg := factory()
	agg.Replay(events...)

	return agg, nil
}
