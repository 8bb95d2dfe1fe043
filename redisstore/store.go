// Package redisstore provides redis backed projection state and checkpoint
// stores, for read models that are queried far more often than they are
// folded.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/altsrc/sourced/projection"
	"github.com/go-redis/redis/v8"
)

const (
	statePrefix      = "sourced:projection:"
	checkpointPrefix = "sourced:checkpoint:"
)

// NewStateStore constructs a redis backed projection state store. State is
// stored json-encoded under a prefixed key per projection name.
func NewStateStore[S any](client *redis.Client) *StateStore[S] {
	return &StateStore[S]{client: client}
}

// StateStore is a redis backed projection.StateStore.
type StateStore[S any] struct {
	client *redis.Client
}

// Load implements projection.StateStore.
func (s *StateStore[S]) Load(ctx context.Context, name string) (S, bool, error) {
	var zero S

	data, err := s.client.Get(ctx, statePrefix+name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}

		return zero, false, fmt.Errorf("loading projection %q: %w", name, err)
	}

	var state S

	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return zero, false, err
	}

	return state, true, nil
}

// Save implements projection.StateStore.
func (s *StateStore[S]) Save(ctx context.Context, name string, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, statePrefix+name, data, 0).Err()
}

// Delete implements projection.StateStore.
func (s *StateStore[S]) Delete(ctx context.Context, name string) error {
	return s.client.Del(ctx, statePrefix+name).Err()
}

// Exists implements projection.StateStore.
func (s *StateStore[S]) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, statePrefix+name).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

var _ projection.StateStore[int] = (*StateStore[int])(nil)

// NewCheckpointStore constructs a redis backed checkpoint store.
func NewCheckpointStore(client *redis.Client) *CheckpointStore {
	return &CheckpointStore{client: client}
}

// CheckpointStore is a redis backed projection.CheckpointStore.
type CheckpointStore struct {
	client *redis.Client
}

type checkpointDoc struct {
	Position uint64    `json:"position"`
	SavedAt  time.Time `json:"saved_at"`
}

// Load implements projection.CheckpointStore.
func (s *CheckpointStore) Load(ctx context.Context, name string) (projection.Checkpoint, bool, error) {
	data, err := s.client.Get(ctx, checkpointPrefix+name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return projection.Checkpoint{}, false, nil
		}

		return projection.Checkpoint{}, false, fmt.Errorf("loading checkpoint %q: %w", name, err)
	}

	var doc checkpointDoc

	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return projection.Checkpoint{}, false, err
	}

	return projection.Checkpoint{
		Projection: name,
		Position:   doc.Position,
		SavedAt:    doc.SavedAt,
	}, true, nil
}

// Save implements projection.CheckpointStore.
func (s *CheckpointStore) Save(ctx context.Context, name string, cp projection.Checkpoint) error {
	data, err := json.Marshal(checkpointDoc{
		Position: cp.Position,
		SavedAt:  cp.SavedAt,
	})
	if err != nil {
		return err
	}

	return s.client.Set(ctx, checkpointPrefix+name, data, 0).Err()
}

// Delete implements projection.CheckpointStore.
func (s *CheckpointStore) Delete(ctx context.Context, name string) error {
	return s.client.Del(ctx, checkpointPrefix+name).Err()
}

var _ projection.CheckpointStore = (*CheckpointStore)(nil)
