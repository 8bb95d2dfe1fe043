package projection

import (
	"context"
	"sync"
)

// InMemStateStore is a map-backed StateStore, useful for tests and for
// projections whose state is cheap to rebuild on startup.
type InMemStateStore[S any] struct {
	mu sync.RWMutex
	m  map[string]S
}

// NewInMemStateStore constructs an empty in-memory state store.
func NewInMemStateStore[S any]() *InMemStateStore[S] {
	return &InMemStateStore[S]{m: make(map[string]S)}
}

// Load implements StateStore.
func (s *InMemStateStore[S]) Load(_ context.Context, name string) (S, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.m[name]

	return state, ok, nil
}

// Save implements StateStore.
func (s *InMemStateStore[S]) Save(_ context.Context, name string, state S) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[name] = state

	return nil
}

// Delete implements StateStore.
func (s *InMemStateStore[S]) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, name)

	return nil
}

// Exists implements StateStore.
func (s *InMemStateStore[S]) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.m[name]

	return ok, nil
}

var _ StateStore[int] = (*InMemStateStore[int])(nil)

// InMemCheckpointStore is a map-backed CheckpointStore.
type InMemCheckpointStore struct {
	mu sync.RWMutex
	m  map[string]Checkpoint
}

// NewInMemCheckpointStore constructs an empty in-memory checkpoint store.
func NewInMemCheckpointStore() *InMemCheckpointStore {
	return &InMemCheckpointStore{m: make(map[string]Checkpoint)}
}

// Load implements CheckpointStore.
func (s *InMemCheckpointStore) Load(_ context.Context, name string) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.m[name]

	return cp, ok, nil
}

// Save implements CheckpointStore.
func (s *InMemCheckpointStore) Save(_ context.Context, name string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[name] = cp

	return nil
}

// Delete implements CheckpointStore.
func (s *InMemCheckpointStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, name)

	return nil
}

var _ CheckpointStore = (*InMemCheckpointStore)(nil)
