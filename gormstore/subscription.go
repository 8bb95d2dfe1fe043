package gormstore

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/altsrc/sourced"
)

// ErrSubscriptionClosedByClient is produced by sub.Err if the client
// cancels the subscription using sub.Close().
var ErrSubscriptionClosedByClient = errors.New("subscription closed by client")

// ReadCfg configures reads of the whole log (configure using ReadOpt).
type ReadCfg struct {
	after        uint64
	batchSize    int
	pollInterval time.Duration
	eventTypes   []string
}

// ReadOpt represents a log read/subscribe option.
type ReadOpt func(ReadCfg) ReadCfg

// WithAfterPosition skips the first n events matching the configured type
// filter, resuming delivery strictly after a projection checkpoint.
func WithAfterPosition(n uint64) ReadOpt {
	return func(cfg ReadCfg) ReadCfg {
		cfg.after = n

		return cfg
	}
}

// WithBatchSize specifies the read batch size (limit) when reading events
// from the log.
func WithBatchSize(size int) ReadOpt {
	return func(cfg ReadCfg) ReadCfg {
		cfg.batchSize = size

		return cfg
	}
}

// WithPollInterval specifies the polling interval of the underlying
// database used by subscriptions.
func WithPollInterval(d time.Duration) ReadOpt {
	return func(cfg ReadCfg) ReadCfg {
		cfg.pollInterval = d

		return cfg
	}
}

// WithEventTypes restricts reads to the given event type tags. Positions
// (WithAfterPosition) count only matching events, aligning with projection
// checkpoints of engines declaring the same types.
func WithEventTypes(types ...string) ReadOpt {
	return func(cfg ReadCfg) ReadCfg {
		cfg.eventTypes = types

		return cfg
	}
}

func newReadCfg(opts []ReadOpt) ReadCfg {
	cfg := ReadCfg{
		batchSize:    100,
		pollInterval: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	return cfg
}

func (s *Store) readBatch(ctx context.Context, cfg ReadCfg, skip uint64) ([]sourced.Event, error) {
	q := s.db.WithContext(ctx).Order("sequence asc")

	if len(cfg.eventTypes) > 0 {
		q = q.Where("type IN ?", cfg.eventTypes)
	}

	var rows []gormEvent

	if err := q.
		Offset(int(skip)).
		Limit(cfg.batchSize).
		Find(&rows).Error; err != nil {

		return nil, err
	}

	return s.decodeEvents(rows)
}

// Source returns a lazy, finite, restartable replay source over the log,
// ordered by sequence, for projection rebuilds and catch-up. Every call to
// Events starts a fresh pass from the configured position.
func (s *Store) Source(opts ...ReadOpt) *Source {
	return &Source{
		store: s,
		cfg:   newReadCfg(opts),
	}
}

// Source implements projection.EventSource over the event log.
type Source struct {
	store *Store
	cfg   ReadCfg
}

// Events reads the log in batches and yields events in sequence order
// until the end of the log.
func (src *Source) Events(ctx context.Context) iter.Seq2[sourced.Event, error] {
	return func(yield func(sourced.Event, error) bool) {
		skip := src.cfg.after

		for {
			if err := ctx.Err(); err != nil {
				yield(sourced.Event{}, err)

				return
			}

			batch, err := src.store.readBatch(ctx, src.cfg, skip)
			if err != nil {
				yield(sourced.Event{}, err)

				return
			}

			if len(batch) == 0 {
				return
			}

			for _, evt := range batch {
				if !yield(evt, nil) {
					return
				}
			}

			skip += uint64(len(batch))
		}
	}
}

// Subscription streams incoming events from the log.
type Subscription struct {
	// Err produces any errors that occur while reading events. io.EOF
	// indicates that the subscription has caught up with the log, after
	// which it keeps polling for new events each time Err is drained -
	// reading Err on io.EOF can be used strategically for backpressure.
	Err    chan error
	Events chan sourced.Event

	close chan struct{}
}

// Close closes the subscription and halts the polling of the database.
func (s Subscription) Close() {
	if s.close == nil {
		return
	}

	s.close <- struct{}{}
}

// ReadAll reads all events currently in the log by internally creating a
// subscription and depleting it until io.EOF.
// WARNING: reads the entire log in a blocking fashion - best used in
// combination with WithAfterPosition and WithEventTypes.
func (s *Store) ReadAll(ctx context.Context, opts ...ReadOpt) ([]sourced.Event, error) {
	sub, err := s.SubscribeAll(ctx, opts...)
	if err != nil {
		return nil, err
	}

	defer sub.Close()

	var events []sourced.Event

	for {
		select {
		case evt := <-sub.Events:
			events = append(events, evt)

		case err := <-sub.Err:
			if errors.Is(err, io.EOF) {
				return events, nil
			}

			return nil, err
		}
	}
}

// SubscribeAll creates a subscription which streams log events in an
// orderly fashion. This mechanism is mostly useful for feeding live
// projections after they have caught up.
func (s *Store) SubscribeAll(ctx context.Context, opts ...ReadOpt) (Subscription, error) {
	cfg := newReadCfg(opts)

	if cfg.batchSize < 1 {
		return Subscription{}, errors.New("batch size should be at least 1")
	}

	sub := Subscription{
		Err:    make(chan error, 1),
		Events: make(chan sourced.Event, cfg.batchSize),
		close:  make(chan struct{}, 1),
	}

	go func() {
		skip := cfg.after

		var done error

		for {
			select {
			case <-sub.close:
				sub.Err <- ErrSubscriptionClosedByClient

				return
			case <-ctx.Done():
				sub.Err <- ctx.Err()

				return
			case <-time.After(cfg.pollInterval):
				// Make sure the client reads all buffered events first
				if done != nil {
					if len(sub.Events) != 0 {
						break
					}

					sub.Err <- done

					return
				}

				batch, err := s.readBatch(ctx, cfg, skip)
				if err != nil {
					done = err

					break
				}

				if len(batch) == 0 {
					sub.Err <- io.EOF

					break
				}

				skip += uint64(len(batch))

				for _, evt := range batch {
					sub.Events <- evt
				}
			}
		}
	}()

	return sub, nil
}
