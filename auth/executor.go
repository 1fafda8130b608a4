package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Stats is a snapshot of an Executor's refresh counters.
type Stats struct {
	Started int64 // refreshes this executor ran
	Joined  int64 // callers that waited on a refresh started by someone else
	Failed  int64 // refreshes that did not produce a usable credential pair
	Retries int64 // operations replayed after a successful refresh
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver registers hooks for the refresh lifecycle.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithUnauthorized replaces the check that decides whether an error means the access token was rejected.
func WithUnauthorized(fn func(error) bool) Option {
	return func(e *Executor) {
		if fn != nil {
			e.unauthorized = fn
		}
	}
}

// flight is one in-progress refresh, shared by every caller that hits a 401 while it runs.
type flight struct {
	done   chan struct{}
	result RefreshResult
	err    error
}

func (f *flight) succeeded() bool {
	return f.err == nil && f.result.Succeeded()
}

// Executor runs operations that need a valid access token. When an operation is rejected as
// unauthorized, it refreshes the credentials at most once per batch of concurrent failures and
// replays each failed operation exactly once.
//
// An Executor is safe for concurrent use. Each instance owns its own in-flight refresh, so
// independent sessions need independent executors.
type Executor struct {
	store        CredentialStore
	refresher    Refresher
	observer     Observer
	unauthorized func(error) bool

	mu       sync.Mutex
	inflight *flight

	started atomic.Int64
	joined  atomic.Int64
	failed  atomic.Int64
	retries atomic.Int64
}

// NewExecutor creates an Executor that reads and updates credentials in store and obtains new
// ones from refresher.
func NewExecutor(store CredentialStore, refresher Refresher, opts ...Option) *Executor {
	e := &Executor{
		store:        store,
		refresher:    refresher,
		observer:     nopObserver{},
		unauthorized: IsUnauthorized,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op. If op fails with an unauthorized error and a refresh token is stored, it waits
// for a refresh (starting one unless another caller already has) and, if the refresh succeeded,
// calls op one more time and returns that outcome as is. In every other case the error from the
// first call is returned unchanged.
func Execute[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	result, opErr := op(ctx)
	if opErr == nil || !e.unauthorized(opErr) {
		return result, opErr
	}

	var zero T
	refreshToken, err := e.store.RefreshToken(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read refresh token, not refreshing")
		return zero, opErr
	}
	if refreshToken == "" {
		log.Debug().Msg("Request unauthorized and no refresh token is stored")
		return zero, opErr
	}

	f := e.acquire(ctx)
	if err := wait(ctx, f); err != nil {
		return zero, err
	}
	if !f.succeeded() {
		return zero, opErr
	}

	e.retries.Add(1)
	return op(ctx)
}

// Do is Execute for operations that only report an error.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Stats returns the current counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Started: e.started.Load(),
		Joined:  e.joined.Load(),
		Failed:  e.failed.Load(),
		Retries: e.retries.Load(),
	}
}

// acquire joins the in-flight refresh or, if there is none, runs a new one on the calling goroutine.
func (e *Executor) acquire(ctx context.Context) *flight {
	e.mu.Lock()
	if f := e.inflight; f != nil {
		e.mu.Unlock()
		e.joined.Add(1)
		e.observer.RefreshJoined()
		log.Debug().Msg("Waiting for in-flight token refresh")
		return f
	}
	f := &flight{done: make(chan struct{})}
	e.inflight = f
	e.mu.Unlock()

	e.run(ctx, f)
	return f
}

// run refreshes with the refresh token stored when the flight starts. A refresh that settled after
// the caller's own read has already rotated the token that caller saw.
func (e *Executor) run(ctx context.Context, f *flight) {
	e.started.Add(1)
	e.observer.RefreshStarted()
	log.Warn().Msg("Access token rejected, refreshing credentials")

	f.err = ErrRefreshPanicked
	defer e.release(f)
	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, fmt.Sprintf("refresher panicked: %v", r))
			panic(r)
		}
	}()

	refreshToken, err := e.store.RefreshToken(ctx)
	switch {
	case err != nil:
		// The stored session may still be good; leave it in place.
		f.err = fmt.Errorf("failed to read refresh token: %w", err)
		e.failed.Add(1)
		e.observer.RefreshFailed(f.err.Error())
		log.Warn().Err(err).Msg("Token refresh aborted, refresh token unreadable")
		return
	case refreshToken == "":
		f.result, f.err = RefreshFailed("no refresh token stored"), nil
	default:
		f.result, f.err = e.refresher.Refresh(ctx, refreshToken)
	}
	if f.succeeded() {
		if err := e.store.SetCredentials(context.WithoutCancel(ctx), f.result.Credentials()); err != nil {
			f.err = fmt.Errorf("failed to save refreshed credentials: %w", err)
		}
	}

	switch {
	case f.succeeded():
		e.observer.RefreshSucceeded()
		log.Info().Msg("Credentials refreshed successfully")
	case f.err != nil:
		e.fail(ctx, f.err.Error())
	default:
		e.fail(ctx, f.result.Reason())
	}
}

// fail clears the stored session. A failed refresh means the refresh token is no longer usable.
func (e *Executor) fail(ctx context.Context, reason string) {
	e.failed.Add(1)
	if err := e.store.ClearCredentials(context.WithoutCancel(ctx)); err != nil {
		log.Error().Err(err).Msg("Failed to clear credentials after refresh failure")
	}
	e.observer.RefreshFailed(reason)
	log.Warn().Str("reason", reason).Msg("Token refresh failed, session cleared")
}

// release resets the in-flight handle before waking waiters, so a 401 seen after this point starts
// a new refresh.
func (e *Executor) release(f *flight) {
	e.mu.Lock()
	if e.inflight == f {
		e.inflight = nil
	}
	e.mu.Unlock()
	close(f.done)
}

func wait(ctx context.Context, f *flight) error {
	select {
	case <-f.done:
		return nil
	default:
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
