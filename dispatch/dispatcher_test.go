package dispatch_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/altsrc/sourced"
	"github.com/altsrc/sourced/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type somethingHappened struct {
	What string
}

type somethingElseHappened struct{}

type recordingSink struct {
	events  []sourced.Event
	wantErr error
}

func (s *recordingSink) Deliver(_ context.Context, evt sourced.Event) error {
	s.events = append(s.events, evt)

	return s.wantErr
}

func someEvents(n int) []sourced.Event {
	events := make([]sourced.Event, 0, n)

	for i := 1; i <= n; i++ {
		events = append(events, sourced.NewEvent("agg-1", uint64(i), somethingHappened{What: "thing"}))
	}

	return events
}

func TestDispatchShouldFanOutToAllChannels(t *testing.T) {
	var first, second recordingSink

	d := dispatch.New()

	require.NoError(t, d.RegisterChannel("first", &first))
	require.NoError(t, d.RegisterChannel("second", &second))

	events := someEvents(3)

	require.NoError(t, d.Dispatch(context.Background(), events))

	assert.Equal(t, events, first.events)
	assert.Equal(t, events, second.events)
}

func TestDispatchWithNoChannelsIsANoOp(t *testing.T) {
	d := dispatch.New()

	assert.NoError(t, d.Dispatch(context.Background(), someEvents(2)))
}

func TestRegisterChannelShouldReplaceOnDuplicateName(t *testing.T) {
	var first, second recordingSink

	d := dispatch.New()

	require.NoError(t, d.RegisterChannel("out", &first))
	require.NoError(t, d.RegisterChannel("out", &second))

	require.NoError(t, d.Dispatch(context.Background(), someEvents(1)))

	assert.Empty(t, first.events)
	assert.Len(t, second.events, 1)
}

func TestRegisterChannelShouldRejectInvalidConfig(t *testing.T) {
	d := dispatch.New()

	var cfgErr *sourced.ConfigError

	assert.ErrorAs(t, d.RegisterChannel("", &recordingSink{}), &cfgErr)
	assert.ErrorAs(t, d.RegisterChannel("out", nil), &cfgErr)
}

func TestChannelFilterShouldRouteSelectively(t *testing.T) {
	var all, filtered recordingSink

	d := dispatch.New()

	require.NoError(t, d.RegisterChannel("all", &all))
	require.NoError(t, d.RegisterChannel("filtered", &filtered,
		dispatch.WithFilter(func(evt sourced.Event) bool {
			return evt.Type == "somethingElseHappened"
		}),
	))

	events := []sourced.Event{
		sourced.NewEvent("agg-1", 1, somethingHappened{What: "thing"}),
		sourced.NewEvent("agg-1", 2, somethingElseHappened{}),
	}

	require.NoError(t, d.Dispatch(context.Background(), events))

	assert.Len(t, all.events, 2)

	require.Len(t, filtered.events, 1)
	assert.Equal(t, "somethingElseHappened", filtered.events[0].Type)
}

func TestChannelTransformShouldOnlyAffectItsOwnChannel(t *testing.T) {
	var plain, transformed recordingSink

	d := dispatch.New()

	require.NoError(t, d.RegisterChannel("plain", &plain))
	require.NoError(t, d.RegisterChannel("transformed", &transformed,
		dispatch.WithTransform(func(evt sourced.Event) sourced.Event {
			evt.Payload = somethingHappened{What: "rewritten"}

			return evt
		}),
	))

	require.NoError(t, d.Dispatch(context.Background(), someEvents(1)))

	require.Len(t, plain.events, 1)
	require.Len(t, transformed.events, 1)

	assert.Equal(t, somethingHappened{What: "thing"}, plain.events[0].Payload)
	assert.Equal(t, somethingHappened{What: "rewritten"}, transformed.events[0].Payload)
}

func TestDispatchShouldCollectFailuresAndKeepDelivering(t *testing.T) {
	wantErr := errors.New("broker down")

	var healthy recordingSink

	failing := recordingSink{wantErr: wantErr}

	d := dispatch.New()

	require.NoError(t, d.RegisterChannel("failing", &failing))
	require.NoError(t, d.RegisterChannel("healthy", &healthy))

	events := someEvents(2)

	err := d.Dispatch(context.Background(), events)

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)

	var dispatchErr *dispatch.Error

	require.ErrorAs(t, err, &dispatchErr)
	assert.Len(t, dispatchErr.Unwrap(), 2)

	var deliveryErr *dispatch.DeliveryError

	require.ErrorAs(t, err, &deliveryErr)
	assert.Equal(t, "failing", deliveryErr.Channel)
	assert.Equal(t, events[0].ID, deliveryErr.EventID)

	assert.Len(t, healthy.events, 2, "healthy channel still receives everything")
}

func TestMiddlewareShouldRunInRegistrationOrder(t *testing.T) {
	var order []string

	tag := func(name string) dispatch.Middleware {
		return func(next dispatch.Handler) dispatch.Handler {
			return func(ctx context.Context, evt sourced.Event) error {
				order = append(order, name)

				return next(ctx, evt)
			}
		}
	}

	var sink recordingSink

	d := dispatch.New()
	d.Use(tag("outer"), tag("inner"))

	require.NoError(t, d.RegisterChannel("out", &sink))

	require.NoError(t, d.Dispatch(context.Background(), someEvents(1)))

	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Len(t, sink.events, 1)
}

func TestFilterMiddlewareShouldHaltPropagation(t *testing.T) {
	var sink recordingSink

	d := dispatch.New()
	d.Use(dispatch.Filter(func(evt sourced.Event) bool {
		return evt.Version > 1
	}))

	require.NoError(t, d.RegisterChannel("out", &sink))

	require.NoError(t, d.Dispatch(context.Background(), someEvents(3)))

	require.Len(t, sink.events, 2)
	assert.Equal(t, uint64(2), sink.events[0].Version)
}

func TestAnnotateMiddlewareShouldStampMetadataOnACopy(t *testing.T) {
	var sink recordingSink

	d := dispatch.New()
	d.Use(dispatch.Annotate(map[string]string{"source": "billing"}))

	require.NoError(t, d.RegisterChannel("out", &sink))

	evt := sourced.NewEvent("agg-1", 1, somethingHappened{}, sourced.WithMeta(map[string]string{"tenant": "acme"}))

	require.NoError(t, d.Dispatch(context.Background(), []sourced.Event{evt}))

	require.Len(t, sink.events, 1)

	assert.Equal(t, map[string]string{"tenant": "acme", "source": "billing"}, sink.events[0].Meta)
	assert.Equal(t, map[string]string{"tenant": "acme"}, evt.Meta, "incoming event untouched")
}

func TestLoggingMiddlewareShouldPassEventsThrough(t *testing.T) {
	var sink recordingSink

	d := dispatch.New()
	d.Use(dispatch.Logging(slog.New(slog.DiscardHandler)))

	require.NoError(t, d.RegisterChannel("out", &sink))

	require.NoError(t, d.Dispatch(context.Background(), someEvents(2)))

	assert.Len(t, sink.events, 2)
}

func TestDispatchEventsForShouldDeliverPendingEvents(t *testing.T) {
	var sink recordingSink

	d := dispatch.New()

	require.NoError(t, d.RegisterChannel("out", &sink))

	agg := pendingHolder{events: someEvents(2)}

	require.NoError(t, d.DispatchEventsFor(context.Background(), agg))

	assert.Equal(t, agg.events, sink.events)
}

type pendingHolder struct {
	events []sourced.Event
}

func (h pendingHolder) PendingEvents() []sourced.Event { return h.events }
