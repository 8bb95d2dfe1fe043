// Package otel provides OpenTelemetry decorators for the repository and
// for dispatcher channel sinks.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/altsrc/sourced"

// Semantic attribute keys following OpenTelemetry conventions.
const (
	AttrAggregateID = attribute.Key("sourced.aggregate.id")
	AttrEventType   = attribute.Key("sourced.event.type")
	AttrEventID     = attribute.Key("sourced.event.id")
	AttrEventCount  = attribute.Key("sourced.events.count")
	AttrVersion     = attribute.Key("sourced.aggregate.version")
	AttrChannelName = attribute.Key("sourced.channel.name")
)

var (
	meter  = otel.Meter(instrumentationName)
	tracer = otel.Tracer(instrumentationName)

	savesHandled, _ = meter.Int64Counter(
		"sourced.repository.saves",
		metric.WithDescription("Total number of aggregate saves"),
		metric.WithUnit("{save}"),
	)

	savesFailed, _ = meter.Int64Counter(
		"sourced.repository.failures",
		metric.WithDescription("Number of failed aggregate saves"),
		metric.WithUnit("{save}"),
	)

	concurrencyConflicts, _ = meter.Int64Counter(
		"sourced.repository.conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	eventsDelivered, _ = meter.Int64Counter(
		"sourced.dispatch.delivered",
		metric.WithDescription("Number of events delivered to channel sinks"),
		metric.WithUnit("{event}"),
	)

	saveDuration, _ = meter.Float64Histogram(
		"sourced.repository.duration",
		metric.WithDescription("Aggregate save duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
)
