package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habedi/tokenguard/auth"
	"github.com/habedi/tokenguard/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return "unauthorized" }
func (e *statusErr) StatusCode() int { return e.code }

func nextEvent(t *testing.T, ch <-chan store.Event) store.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for credential event")
		return store.Event{}
	}
}

func TestStore_SetAndClearNotify(t *testing.T) {
	s := store.New(store.NewMemoryBackend())
	ctx := context.Background()
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	_, err := s.Credentials(ctx)
	assert.ErrorIs(t, err, store.ErrNoCredentials)

	require.NoError(t, s.SetCredentials(ctx, auth.Credentials{AccessToken: "a1", RefreshToken: "r1"}))
	assert.Equal(t, store.EventSet, nextEvent(t, events).Kind)

	creds, err := s.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", creds.AccessToken)
	refresh, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", refresh)

	require.NoError(t, s.ClearCredentials(ctx))
	assert.Equal(t, store.EventCleared, nextEvent(t, events).Kind)

	access, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
}

func TestStore_UnsubscribeClosesChannel(t *testing.T) {
	s := store.New(store.NewMemoryBackend())
	events, unsubscribe := s.Subscribe()

	unsubscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
	assert.NoError(t, s.ClearCredentials(context.Background()), "publishing without subscribers is fine")
}

func TestStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := store.New(store.NewMemoryBackend())
	_, unsubscribe := s.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = s.ClearCredentials(context.Background())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a subscriber that never reads")
	}
}

type failingBackend struct{ store.Backend }

func (failingBackend) Save(context.Context, auth.Credentials) error { return errors.New("read-only") }

func TestStore_BackendErrorsAreWrapped(t *testing.T) {
	s := store.New(failingBackend{store.NewMemoryBackend()})
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	err := s.SetCredentials(context.Background(), auth.Credentials{AccessToken: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v after failed save", ev.Kind)
	default:
	}
}

func TestStore_ExecutorRefreshPublishesEvents(t *testing.T) {
	ctx := context.Background()
	s := store.New(store.NewMemoryBackend())
	require.NoError(t, s.SetCredentials(ctx, auth.Credentials{AccessToken: "a1", RefreshToken: "r1"}))
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	ok := auth.RefresherFunc(func(ctx context.Context, refreshToken string) (auth.RefreshResult, error) {
		assert.Equal(t, "r1", refreshToken)
		return auth.Refreshed(auth.Credentials{AccessToken: "a2", RefreshToken: "r2"}), nil
	})
	exec := auth.NewExecutor(s, ok)
	calls := 0
	err := exec.Do(ctx, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &statusErr{code: 401}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, store.EventSet, nextEvent(t, events).Kind)
	creds, err := s.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", creds.AccessToken)

	rejected := auth.RefresherFunc(func(ctx context.Context, refreshToken string) (auth.RefreshResult, error) {
		return auth.RefreshFailed("invalid_grant"), nil
	})
	exec = auth.NewExecutor(s, rejected)
	err = exec.Do(ctx, func(ctx context.Context) error { return &statusErr{code: 401} })
	require.Error(t, err)
	assert.Equal(t, store.EventCleared, nextEvent(t, events).Kind)
	_, err = s.Credentials(ctx)
	assert.ErrorIs(t, err, store.ErrNoCredentials)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "set", store.EventSet.String())
	assert.Equal(t, "cleared", store.EventCleared.String())
	assert.Equal(t, "unknown", store.EventKind(0).String())
}
