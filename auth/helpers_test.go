package auth_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/habedi/tokenguard/auth"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("unexpected HTTP status: %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

type mockStore struct {
	mu           sync.Mutex
	creds        auth.Credentials
	readErr      error
	setCalls     int
	clearCalls   int
	lastSet      auth.Credentials
	refreshReads int
}

func newMockStore(refreshToken string) *mockStore {
	return &mockStore{creds: auth.Credentials{AccessToken: "a1", RefreshToken: refreshToken}}
}

func (m *mockStore) RefreshToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshReads++
	return m.creds.RefreshToken, m.readErr
}

func (m *mockStore) SetCredentials(ctx context.Context, creds auth.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.lastSet = creds
	m.creds = creds
	return nil
}

func (m *mockStore) ClearCredentials(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	m.creds = auth.Credentials{}
	return nil
}

func (m *mockStore) counts() (set, clear int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCalls, m.clearCalls
}

// mockRefresher counts calls and optionally blocks until gate is closed.
type mockRefresher struct {
	calls  atomic.Int64
	gate   chan struct{}
	result auth.RefreshResult
	err    error
}

func succeedingRefresher() *mockRefresher {
	return &mockRefresher{result: auth.Refreshed(auth.Credentials{AccessToken: "a2", RefreshToken: "r2"})}
}

func (m *mockRefresher) Refresh(ctx context.Context, refreshToken string) (auth.RefreshResult, error) {
	m.calls.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return auth.RefreshResult{}, ctx.Err()
		}
	}
	return m.result, m.err
}

// flakyOp fails with 401 on its first call and returns value afterwards.
type flakyOp struct {
	calls atomic.Int64
	value string
	err   error
}

func (o *flakyOp) run(ctx context.Context) (string, error) {
	if o.calls.Add(1) == 1 {
		return "", o.err
	}
	return o.value, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	events  []string
	reasons []string
}

func (r *recordingObserver) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingObserver) RefreshStarted()   { r.add("started") }
func (r *recordingObserver) RefreshJoined()    { r.add("joined") }
func (r *recordingObserver) RefreshSucceeded() { r.add("succeeded") }
func (r *recordingObserver) RefreshFailed(reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
	r.add("failed")
}

// hookStore calls onRead after every RefreshToken read with the 1-based read number.
// A non-nil error from onRead replaces the read's error.
type hookStore struct {
	*mockStore
	reads  atomic.Int64
	onRead func(n int64) error
}

func (h *hookStore) RefreshToken(ctx context.Context) (string, error) {
	token, err := h.mockStore.RefreshToken(ctx)
	if hookErr := h.onRead(h.reads.Add(1)); hookErr != nil {
		return "", hookErr
	}
	return token, err
}

// rotatingRefresher accepts only the current refresh token and rotates it on every success,
// like a real issuer.
type rotatingRefresher struct {
	mu      sync.Mutex
	current string
	issued  int
	seen    []string
}

func (r *rotatingRefresher) Refresh(ctx context.Context, refreshToken string) (auth.RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, refreshToken)
	if refreshToken != r.current {
		return auth.RefreshFailed("invalid_grant"), nil
	}
	r.issued++
	r.current = fmt.Sprintf("r%d", r.issued+1)
	return auth.Refreshed(auth.Credentials{AccessToken: fmt.Sprintf("a%d", r.issued+1), RefreshToken: r.current}), nil
}

func (r *rotatingRefresher) tokensSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}
