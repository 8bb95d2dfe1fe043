// Package dispatch routes committed events to named delivery channels
// (eg. "domain", "integration", "audit") through an ordered middleware
// pipeline. Delivery is best-effort fan-out: a failing channel does not
// prevent delivery to the others, failures are collected and surfaced
// after all channels were attempted.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/altsrc/sourced"
)

// Handler processes a single event.
type Handler func(ctx context.Context, evt sourced.Event) error

// Middleware wraps a Handler. Middlewares run for every dispatched event in
// registration order before the event reaches channel sinks; a middleware
// that returns without calling next halts propagation (filtering).
type Middleware func(next Handler) Handler

// Sink is a channel's delivery destination.
type Sink interface {
	Deliver(ctx context.Context, evt sourced.Event) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ctx context.Context, evt sourced.Event) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, evt sourced.Event) error {
	return f(ctx, evt)
}

type channel struct {
	name      string
	sink      Sink
	accepts   func(sourced.Event) bool
	transform func(sourced.Event) sourced.Event
}

// ChannelOption configures a registered channel.
type ChannelOption func(*channel)

// WithFilter sets the channel routing predicate; only events it accepts are
// delivered to the channel.
func WithFilter(accepts func(sourced.Event) bool) ChannelOption {
	return func(ch *channel) {
		ch.accepts = accepts
	}
}

// WithTransform sets a payload transformer applied just before delivery to
// this specific channel, eg. mapping a domain event to its integration
// representation. Other channels see the untransformed event.
func WithTransform(transform func(sourced.Event) sourced.Event) ChannelOption {
	return func(ch *channel) {
		ch.transform = transform
	}
}

// Dispatcher fans committed events out to registered channels. It
// implements sourced.EventDispatcher. Events from one aggregate reach a
// given channel in the order they were applied; no ordering is guaranteed
// across channels.
type Dispatcher struct {
	mu         sync.RWMutex
	channels   []*channel
	middleware []Middleware
}

// New constructs an empty dispatcher; channels and middleware are
// registered during composition.
func New() *Dispatcher {
	return &Dispatcher{}
}

// RegisterChannel registers a named delivery channel. Channel names are
// unique - re-registration replaces the previous sink and options.
func (d *Dispatcher) RegisterChannel(name string, sink Sink, opts ...ChannelOption) error {
	if name == "" {
		return &sourced.ConfigError{Err: fmt.Errorf("channel name must be provided")}
	}

	if sink == nil {
		return &sourced.ConfigError{Err: fmt.Errorf("channel %q: sink must be provided", name)}
	}

	ch := channel{
		name: name,
		sink: sink,
	}

	for _, opt := range opts {
		opt(&ch)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.channels {
		if existing.name == name {
			d.channels[i] = &ch

			return nil
		}
	}

	d.channels = append(d.channels, &ch)

	return nil
}

// Use appends middleware to the pipeline, executed in registration order.
func (d *Dispatcher) Use(mw ...Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.middleware = append(d.middleware, mw...)
}

// Dispatch runs every event through the middleware pipeline and delivers it
// to each accepting channel. Failures are collected into an *Error returned
// after all events and channels were attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, events []sourced.Event) error {
	d.mu.RLock()
	channels := d.channels
	pipeline := d.middleware
	d.mu.RUnlock()

	var failures []error

	deliver := func(ctx context.Context, evt sourced.Event) error {
		for _, ch := range channels {
			if ch.accepts != nil && !ch.accepts(evt) {
				continue
			}

			out := evt

			if ch.transform != nil {
				out = ch.transform(evt)
			}

			if err := ch.sink.Deliver(ctx, out); err != nil {
				failures = append(failures, &DeliveryError{
					Channel: ch.name,
					EventID: evt.ID,
					Err:     err,
				})
			}
		}

		return nil
	}

	chain := Handler(deliver)

	for i := len(pipeline) - 1; i >= 0; i-- {
		chain = pipeline[i](chain)
	}

	for _, evt := range events {
		if err := chain(ctx, evt); err != nil {
			failures = append(failures, err)
		}
	}

	if len(failures) > 0 {
		return &Error{errs: failures}
	}

	return nil
}

// DispatchEventsFor delivers an aggregate's pending events, read before the
// repository commits them.
func (d *Dispatcher) DispatchEventsFor(ctx context.Context, agg interface {
	PendingEvents() []sourced.Event
}) error {
	return d.Dispatch(ctx, agg.PendingEvents())
}

// DeliveryError reports a failed delivery of one event to one channel.
type DeliveryError struct {
	Channel string
	EventID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("channel %q: delivering event %s: %v", e.Channel, e.EventID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Error aggregates dispatch failures across events and channels.
type Error struct {
	errs []error
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.errs))

	for i, err := range e.errs {
		msgs[i] = err.Error()
	}

	return fmt.Sprintf("dispatch failed: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *Error) Unwrap() []error { return e.errs }
