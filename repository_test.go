package sourced_test

import (
	"context"
	"errors"
	"testing"

	"github.com/altsrc/sourced"
	"github.com/altsrc/sourced/aggregate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type NameChanged struct {
	Name string
}

type UnknownEvent struct{}

type userID string

func (id userID) String() string { return string(id) }

type user struct {
	aggregate.Root[userID]

	name string
}

func newUser(id userID) *user {
	var u user

	u.Bind(id, aggregate.When(u.onNameChanged))

	return &u
}

func (u *user) onNameChanged(evt NameChanged) {
	u.name = evt.Name
}

type versionStore struct {
	versions map[string]uint64
	wantErr  error
	reads    int
}

func (s *versionStore) CurrentVersion(_ context.Context, id string) (uint64, error) {
	s.reads++

	if s.wantErr != nil {
		return 0, s.wantErr
	}

	return s.versions[id], nil
}

type recordingDispatcher struct {
	events  []sourced.Event
	wantErr error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, events []sourced.Event) error {
	d.events = append(d.events, events...)

	return d.wantErr
}

func TestSaveWithNoPendingEventsIsANoOp(t *testing.T) {
	versions := versionStore{}
	dispatcher := recordingDispatcher{}

	repo, err := sourced.NewRepository(&versions, nil, sourced.WithDispatcher(&dispatcher))
	require.NoError(t, err)

	u := newUser("user-1")

	require.NoError(t, repo.Save(context.Background(), u))

	assert.Zero(t, versions.reads, "store should not be touched")
	assert.Empty(t, dispatcher.events)
}

func TestSaveShouldApplyHandlersInOrderAndCommit(t *testing.T) {
	versions := versionStore{}
	dispatcher := recordingDispatcher{}

	var handled []string

	repo, err := sourced.NewRepository(
		&versions,
		map[string]sourced.EventHandler{
			"NameChanged": func(_ context.Context, evt sourced.Event) error {
				payload := evt.Payload.(NameChanged)
				handled = append(handled, payload.Name)

				return nil
			},
		},
		sourced.WithDispatcher(&dispatcher),
	)
	require.NoError(t, err)

	u := newUser("user-1")
	u.Apply(NameChanged{Name: "Test"})
	u.Apply(NameChanged{Name: "Other"})

	require.NoError(t, repo.Save(context.Background(), u))

	assert.Equal(t, []string{"Test", "Other"}, handled)
	assert.Empty(t, u.PendingEvents(), "pending events cleared post-commit")
	assert.Equal(t, uint64(2), u.InitialVersion())

	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, "user-1", dispatcher.events[0].AggregateID)
	assert.Equal(t, uint64(1), dispatcher.events[0].Version)
}

func TestSaveShouldFailWithConcurrencyConflict(t *testing.T) {
	versions := versionStore{versions: map[string]uint64{"user-1": 5}}
	dispatcher := recordingDispatcher{}

	invoked := false

	repo, err := sourced.NewRepository(
		&versions,
		map[string]sourced.EventHandler{
			"NameChanged": func(context.Context, sourced.Event) error {
				invoked = true

				return nil
			},
		},
		sourced.WithDispatcher(&dispatcher),
	)
	require.NoError(t, err)

	u := newUser("user-1")
	u.Apply(NameChanged{Name: "Test"})

	err = repo.Save(context.Background(), u)

	require.Error(t, err)
	assert.ErrorIs(t, err, sourced.ErrConcurrencyConflict)

	var conflict *sourced.ConflictError

	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(0), conflict.Expected)
	assert.Equal(t, uint64(5), conflict.Actual)

	assert.False(t, invoked, "no handler should be invoked")
	assert.Empty(t, dispatcher.events)
	assert.Len(t, u.PendingEvents(), 1, "events remain pending")
}

func TestSaveShouldFailWithConfigErrorOnMissingHandler(t *testing.T) {
	versions := versionStore{}
	dispatcher := recordingDispatcher{}

	repo, err := sourced.NewRepository(&versions, nil, sourced.WithDispatcher(&dispatcher))
	require.NoError(t, err)

	u := newUser("user-1")
	u.Apply(UnknownEvent{})

	err = repo.Save(context.Background(), u)

	require.Error(t, err)
	assert.ErrorIs(t, err, sourced.ErrMissingHandler)

	var cfgErr *sourced.ConfigError

	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "UnknownEvent", cfgErr.EventType)

	assert.Empty(t, dispatcher.events, "no dispatch occurs")
	assert.Len(t, u.PendingEvents(), 1)
}

func TestSaveShouldAbortOnHandlerFailure(t *testing.T) {
	versions := versionStore{}
	dispatcher := recordingDispatcher{}

	wantErr := errors.New("storage blew up")

	var handled []string

	repo, err := sourced.NewRepository(
		&versions,
		map[string]sourced.EventHandler{
			"NameChanged": func(_ context.Context, evt sourced.Event) error {
				payload := evt.Payload.(NameChanged)

				if payload.Name == "second" {
					return wantErr
				}

				handled = append(handled, payload.Name)

				return nil
			},
		},
		sourced.WithDispatcher(&dispatcher),
	)
	require.NoError(t, err)

	u := newUser("user-1")
	u.Apply(NameChanged{Name: "first"})
	u.Apply(NameChanged{Name: "second"})
	u.Apply(NameChanged{Name: "third"})

	err = repo.Save(context.Background(), u)

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)

	var handlerErr *sourced.HandlerError

	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, "NameChanged", handlerErr.EventType)

	assert.Equal(t, []string{"first"}, handled, "earlier handlers already ran, later ones never run")
	assert.Empty(t, dispatcher.events, "dispatch never occurs")
	assert.Len(t, u.PendingEvents(), 3, "aggregate not committed")
}

func TestSaveShouldCommitEvenWhenDispatchFails(t *testing.T) {
	versions := versionStore{}
	dispatcher := recordingDispatcher{wantErr: errors.New("channel down")}

	repo, err := sourced.NewRepository(
		&versions,
		map[string]sourced.EventHandler{
			"NameChanged": func(context.Context, sourced.Event) error { return nil },
		},
		sourced.WithDispatcher(&dispatcher),
	)
	require.NoError(t, err)

	u := newUser("user-1")
	u.Apply(NameChanged{Name: "Test"})

	err = repo.Save(context.Background(), u)

	assert.ErrorIs(t, err, dispatcher.wantErr)
	assert.Empty(t, u.PendingEvents(), "events are durable, aggregate commits")
}

func TestSaveWithoutDispatcherShouldCommit(t *testing.T) {
	versions := versionStore{}

	repo, err := sourced.NewRepository(
		&versions,
		map[string]sourced.EventHandler{
			"NameChanged": func(context.Context, sourced.Event) error { return nil },
		},
	)
	require.NoError(t, err)

	u := newUser("user-1")
	u.Apply(NameChanged{Name: "Test"})

	require.NoError(t, repo.Save(context.Background(), u))
	assert.Empty(t, u.PendingEvents())
}

func TestNewRepositoryShouldRejectNilHandler(t *testing.T) {
	_, err := sourced.NewRepository(
		&versionStore{},
		map[string]sourced.EventHandler{"NameChanged": nil},
	)

	var cfgErr *sourced.ConfigError

	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewRepositoryShouldValidateDeclaredEvents(t *testing.T) {
	_, err := sourced.NewRepository(
		&versionStore{},
		map[string]sourced.EventHandler{
			"NameChanged": func(context.Context, sourced.Event) error { return nil },
		},
		sourced.WithDeclaredEvents(NameChanged{}, UnknownEvent{}),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, sourced.ErrMissingHandler)
}

func TestSaveShouldPropagateVersionStoreError(t *testing.T) {
	wantErr := errors.New("db offline")

	repo, err := sourced.NewRepository(
		&versionStore{wantErr: wantErr},
		map[string]sourced.EventHandler{
			"NameChanged": func(context.Context, sourced.Event) error { return nil },
		},
	)
	require.NoError(t, err)

	u := newUser("user-1")
	u.Apply(NameChanged{Name: "Test"})

	assert.ErrorIs(t, repo.Save(context.Background(), u), wantErr)
}
