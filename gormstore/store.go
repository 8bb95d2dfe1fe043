// Package gormstore provides the gorm backed storage layer: an append-only
// event log with an optimistic concurrency index, version reads for the
// repository, a resumable replay source for projections and gorm backed
// projection state and checkpoint stores. SQLite and Postgres are
// supported as backing databases.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/altsrc/sourced"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrStreamNotFound indicates that the requested aggregate has no stored
// events.
var ErrStreamNotFound = errors.New("stream not found")

// Cfg represents store configuration.
type Cfg struct {
	PostgresDSN string
	SQLitePath  string
}

// Option represents a store configuration option.
type Option func(Cfg) Cfg

// WithPostgresDB configures the store to use postgres as backing storage
// (pgx driver).
func WithPostgresDB(dsn string) Option {
	return func(cfg Cfg) Cfg {
		cfg.PostgresDSN = dsn

		return cfg
	}
}

// WithSQLiteDB configures the store to use sqlite as backing storage.
func WithSQLiteDB(path string) Option {
	return func(cfg Cfg) Cfg {
		cfg.SQLitePath = path

		return cfg
	}
}

// New constructs the store and migrates its tables.
// enc - a specific encoder implementation (see bundled JSONEncoder)
func New(enc Encoder, opts ...Option) (*Store, error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder implementation must be provided")
	}

	var cfg Cfg

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	if cfg.PostgresDSN == "" && cfg.SQLitePath == "" {
		return nil, fmt.Errorf("either postgres dsn or sqlite path must be provided")
	}

	var dial gorm.Dialector

	if cfg.PostgresDSN != "" {
		dial = postgres.Open(cfg.PostgresDSN)
	}

	if cfg.SQLitePath != "" {
		dial = sqlite.Open(cfg.SQLitePath)
	}

	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return &Store{
		db:  db,
		enc: enc,
	}, db.AutoMigrate(&gormEvent{}, &gormProjection{}, &gormCheckpoint{})
}

// Store is the gorm backed event log.
type Store struct {
	db  *gorm.DB
	enc Encoder
}

// Close closes the underlying sql connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

type gormEvent struct {
	ID            string `gorm:"unique"`
	Sequence      uint64 `gorm:"autoIncrement;primaryKey"`
	Type          string
	Data          string
	Meta          *string
	CorrelationID *string
	StreamID      string `gorm:"index:idx_optimistic_check,unique;index"`
	StreamVersion uint64 `gorm:"index:idx_optimistic_check,unique"`
	OccurredOn    time.Time
}

// TableName returns the gorm table name.
func (ge *gormEvent) TableName() string { return "event" }

// Append writes one event to the log at its (aggregate, version) slot. The
// compound unique index turns a concurrent write of the same slot into
// sourced.ErrConcurrencyConflict, which also makes retries of a partially
// applied save safe - re-appending an already stored event fails instead
// of duplicating it.
func (s *Store) Append(ctx context.Context, evt sourced.Event) error {
	encoded, err := s.enc.Encode(evt.Payload)
	if err != nil {
		return err
	}

	row := gormEvent{
		ID:            evt.ID,
		Type:          encoded.Type,
		Data:          encoded.Data,
		StreamID:      evt.AggregateID,
		StreamVersion: evt.Version,
		OccurredOn:    evt.OccurredOn,
	}

	if evt.CorrelationID != "" {
		row.CorrelationID = &evt.CorrelationID
	}

	if evt.Meta != nil {
		m, err := json.Marshal(evt.Meta)
		if err != nil {
			return err
		}

		ms := string(m)

		row.Meta = &ms
	}

	if row.OccurredOn.IsZero() {
		row.OccurredOn = time.Now().UTC()
	}

	tx := s.db.WithContext(ctx).Create(&row)

	return mapConflict(tx.Error)
}

// AppendHandler returns the event handler used as the repository's default
// storage mutation: append the event to the log.
func (s *Store) AppendHandler() sourced.EventHandler {
	return func(ctx context.Context, evt sourced.Event) error {
		return s.Append(ctx, evt)
	}
}

// CurrentVersion implements sourced.VersionStore: the highest stored
// version for the aggregate, 0 when no events exist.
func (s *Store) CurrentVersion(ctx context.Context, aggregateID string) (uint64, error) {
	var version uint64

	err := s.db.
		WithContext(ctx).
		Model(&gormEvent{}).
		Where("stream_id = ?", aggregateID).
		Select("COALESCE(MAX(stream_version), 0)").
		Scan(&version).Error
	if err != nil {
		return 0, err
	}

	return version, nil
}

// ReadStream reads all events stored for the aggregate, oldest first.
// ErrStreamNotFound is returned when no events exist.
func (s *Store) ReadStream(ctx context.Context, aggregateID string) ([]sourced.Event, error) {
	if len(aggregateID) == 0 {
		return nil, fmt.Errorf("aggregate id must be provided")
	}

	var rows []gormEvent

	if err := s.db.
		WithContext(ctx).
		Where("stream_id = ?", aggregateID).
		Order("sequence asc").
		Find(&rows).Error; err != nil {

		return nil, err
	}

	if len(rows) == 0 {
		return nil, ErrStreamNotFound
	}

	return s.decodeEvents(rows)
}

func (s *Store) decodeEvents(rows []gormEvent) ([]sourced.Event, error) {
	out := make([]sourced.Event, len(rows))

	for i, row := range rows {
		payload, err := s.enc.Decode(&EncodedEvt{
			Data: row.Data,
			Type: row.Type,
		})
		if err != nil {
			return nil, err
		}

		evt := sourced.Event{
			ID:          row.ID,
			Type:        row.Type,
			Payload:     payload,
			AggregateID: row.StreamID,
			Version:     row.StreamVersion,
			OccurredOn:  row.OccurredOn,
		}

		if row.CorrelationID != nil {
			evt.CorrelationID = *row.CorrelationID
		}

		if row.Meta != nil {
			var meta map[string]string

			if err := json.Unmarshal([]byte(*row.Meta), &meta); err != nil {
				return nil, err
			}

			evt.Meta = meta
		}

		out[i] = evt
	}

	return out, nil
}

// mapConflict translates driver specific duplicate-key failures on the
// optimistic check index into the shared conflict sentinel.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}

	var serr sqlite3.Error

	if errors.As(err, &serr) && serr.Code == 19 {
		return fmt.Errorf("%w: %v", sourced.ErrConcurrencyConflict, err)
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", sourced.ErrConcurrencyConflict, err)
	}

	return err
}
