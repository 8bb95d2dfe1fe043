package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/altsrc/sourced/projection"
	"gorm.io/gorm"
)

type gormProjection struct {
	Name      string `gorm:"primaryKey"`
	State     string
	UpdatedAt time.Time
}

// TableName returns the gorm table name.
func (gp *gormProjection) TableName() string { return "projection_state" }

type gormCheckpoint struct {
	Name     string `gorm:"primaryKey"`
	Position uint64
	SavedAt  time.Time
}

// TableName returns the gorm table name.
func (gc *gormCheckpoint) TableName() string { return "projection_checkpoint" }

// NewStateStore constructs a projection state store persisting
// json-encoded state in the store's database.
func NewStateStore[S any](store *Store) *StateStore[S] {
	return &StateStore[S]{db: store.db}
}

// StateStore is a gorm backed projection.StateStore.
type StateStore[S any] struct {
	db *gorm.DB
}

// Load implements projection.StateStore.
func (s *StateStore[S]) Load(ctx context.Context, name string) (S, bool, error) {
	var (
		zero S
		row  gormProjection
	)

	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, false, nil
		}

		return zero, false, err
	}

	var state S

	if err := json.Unmarshal([]byte(row.State), &state); err != nil {
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

	row := gormProjection{
		Name:      name,
		State:     string(data),
		UpdatedAt: time.Now().UTC(),
	}

	return s.db.WithContext(ctx).Save(&row).Error
}

// Delete implements projection.StateStore.
func (s *StateStore[S]) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&gormProjection{}, "name = ?", name).Error
}

// Exists implements projection.StateStore.
func (s *StateStore[S]) Exists(ctx context.Context, name string) (bool, error) {
	var count int64

	err := s.db.WithContext(ctx).
		Model(&gormProjection{}).
		Where("name = ?", name).
		Count(&count).Error

	return count > 0, err
}

// NewCheckpointStore constructs a checkpoint store persisting positions in
// the store's database.
func NewCheckpointStore(store *Store) *CheckpointStore {
	return &CheckpointStore{db: store.db}
}

// CheckpointStore is a gorm backed projection.CheckpointStore.
type CheckpointStore struct {
	db *gorm.DB
}

// Load implements projection.CheckpointStore.
func (s *CheckpointStore) Load(ctx context.Context, name string) (projection.Checkpoint, bool, error) {
	var row gormCheckpoint

	err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return projection.Checkpoint{}, false, nil
		}

		return projection.Checkpoint{}, false, err
	}

	return projection.Checkpoint{
		Projection: row.Name,
		Position:   row.Position,
		SavedAt:    row.SavedAt,
	}, true, nil
}

// Save implements projection.CheckpointStore.
func (s *CheckpointStore) Save(ctx context.Context, name string, cp projection.Checkpoint) error {
	row := gormCheckpoint{
		Name:     name,
		Position: cp.Position,
		SavedAt:  cp.SavedAt,
	}

	return s.db.WithContext(ctx).Save(&row).Error
}

// Delete implements projection.CheckpointStore.
func (s *CheckpointStore) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&gormCheckpoint{}, "name = ?", name).Error
}
