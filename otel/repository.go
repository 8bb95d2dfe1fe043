package otel

import (
	"context"
	"errors"
	"time"

	"github.com/altsrc/sourced"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ sourced.Saver = (*Repository)(nil)

// Repository wraps a sourced.Saver with tracing and metrics. Concurrency
// conflicts are recorded on a dedicated counter since they are the main
// contention signal of the save protocol.
type Repository struct {
	next sourced.Saver
}

// WithRepositoryTelemetry wraps a repository with OpenTelemetry tracing
// and metrics.
func WithRepositoryTelemetry(next sourced.Saver) *Repository {
	return &Repository{next: next}
}

// Save delegates to the wrapped repository inside a client span.
func (r *Repository) Save(ctx context.Context, agg sourced.Aggregate) error {
	pending := agg.PendingEvents()

	ctx, span := tracer.Start(ctx, "repository.save",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrAggregateID.String(agg.StringID()),
			AttrVersion.Int64(int64(agg.InitialVersion())),
			AttrEventCount.Int(len(pending)),
		),
	)
	defer span.End()

	savesHandled.Add(ctx, 1)

	start := time.Now()
	err := r.next.Save(ctx, agg)
	saveDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		if errors.Is(err, sourced.ErrConcurrencyConflict) {
			concurrencyConflicts.Add(ctx, 1)
		}

		savesFailed.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	span.SetStatus(codes.Ok, "")

	return nil
}

// Sink wraps a dispatcher channel sink with consumer spans.
type Sink struct {
	name string
	next interface {
		Deliver(ctx context.Context, evt sourced.Event) error
	}
}

// WithSinkTelemetry wraps a channel sink with OpenTelemetry tracing. The
// name should match the channel the sink is registered under.
func WithSinkTelemetry(name string, next interface {
	Deliver(ctx context.Context, evt sourced.Event) error
}) *Sink {
	return &Sink{name: name, next: next}
}

// Deliver delegates to the wrapped sink inside a consumer span.
func (s *Sink) Deliver(ctx context.Context, evt sourced.Event) error {
	ctx, span := tracer.Start(ctx, "channel.deliver "+s.name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			AttrChannelName.String(s.name),
			AttrEventType.String(evt.Type),
			AttrEventID.String(evt.ID),
			AttrAggregateID.String(evt.AggregateID),
		),
	)
	defer span.End()

	eventsDelivered.Add(ctx, 1, metric.WithAttributes(AttrChannelName.String(s.name)))

	err := s.next.Deliver(ctx, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	span.SetStatus(codes.Ok, "")

	return nil
}
