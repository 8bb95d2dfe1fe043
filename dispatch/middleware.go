package dispatch

import (
	"context"
	"log/slog"

	"github.com/altsrc/sourced"
)

// Logging returns a middleware that logs every dispatched event before
// handing it on.
func Logging(log *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt sourced.Event) error {
			log.InfoContext(ctx, "dispatching event",
				slog.String("event_id", evt.ID),
				slog.String("event_type", evt.Type),
				slog.String("aggregate_id", evt.AggregateID),
				slog.Uint64("version", evt.Version),
			)

			return next(ctx, evt)
		}
	}
}

// Filter returns a middleware that halts propagation of events the
// predicate rejects. Filtered events are not an error.
func Filter(accepts func(sourced.Event) bool) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt sourced.Event) error {
			if !accepts(evt) {
				return nil
			}

			return next(ctx, evt)
		}
	}
}

// Annotate returns a middleware that stamps additional metadata onto every
// event flowing through the pipeline. The incoming event is not mutated;
// downstream handlers see an annotated copy.
func Annotate(meta map[string]string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt sourced.Event) error {
			annotated := evt
			annotated.Meta = make(map[string]string, len(evt.Meta)+len(meta))

			for k, v := range evt.Meta {
				annotated.Meta[k] = v
			}

			for k, v := range meta {
				annotated.Meta[k] = v
			}

			return next(ctx, annotated)
		}
	}
}
