package gormstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/altsrc/sourced"
	"github.com/altsrc/sourced/projection"
)

// Subscriber is a resumable event consumer fed by the Projector.
// *projection.Engine satisfies it.
type Subscriber interface {
	Name() string
	EventTypes() []string
	Start(ctx context.Context) error
	Checkpoint() projection.Checkpoint
	Deliver(ctx context.Context, evt sourced.Event) error
}

// NewProjector constructs a projector feeding live log events to the given
// subscribers.
func NewProjector(store *Store, opts ...ProjectorOption) *Projector {
	p := Projector{
		store: store,
		log:   slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(&p)
	}

	return &p
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// WithProjectorLogger sets the projector logger.
func WithProjectorLogger(log *slog.Logger) ProjectorOption {
	return func(p *Projector) {
		p.log = log
	}
}

// Projector pumps the event log into projection engines. Each subscriber
// is restored from its checkpoint and then fed events strictly after it,
// in its own goroutine - a failing subscriber does not affect the others.
type Projector struct {
	store       *Store
	log         *slog.Logger
	subscribers []Subscriber
}

// Add registers subscribers with the projector. Call before Run.
func (p *Projector) Add(subs ...Subscriber) {
	p.subscribers = append(p.subscribers, subs...)
}

// Run starts all subscribers and blocks until the context is canceled or
// every subscriber stopped.
func (p *Projector) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, sub := range p.subscribers {
		wg.Add(1)

		go func(sub Subscriber) {
			defer wg.Done()

			if err := p.run(ctx, sub); err != nil {
				p.log.ErrorContext(ctx, "subscriber stopped",
					slog.String("projection", sub.Name()),
					slog.Any("error", err),
				)
			}
		}(sub)
	}

	wg.Wait()

	return nil
}

func (p *Projector) run(ctx context.Context, sub Subscriber) error {
	if err := sub.Start(ctx); err != nil {
		return err
	}

	opts := []ReadOpt{
		WithAfterPosition(sub.Checkpoint().Position),
	}

	if types := sub.EventTypes(); len(types) > 0 {
		opts = append(opts, WithEventTypes(types...))
	}

	s, err := p.store.SubscribeAll(ctx, opts...)
	if err != nil {
		return err
	}

	defer s.Close()

	for {
		select {
		case evt := <-s.Events:
			if err := sub.Deliver(ctx, evt); err != nil {
				return err
			}

		case err := <-s.Err:
			if errors.Is(err, io.EOF) {
				break
			}

			if errors.Is(err, ErrSubscriptionClosedByClient) {
				return nil
			}

			if err != nil {
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}
