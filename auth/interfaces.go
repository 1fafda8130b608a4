package auth

import "context"

// CredentialStore defines the contract for any component that holds the current credential pair.
// RefreshToken returns an empty string when no refresh token is stored.
type CredentialStore interface {
	RefreshToken(ctx context.Context) (string, error)
	SetCredentials(ctx context.Context, creds Credentials) error
	ClearCredentials(ctx context.Context) error
}

// Refresher defines the contract for any component that can exchange a refresh token for a new
// credential pair. A returned error is treated the same as a RefreshFailed result.
//
// Implementations must talk to the token endpoint over a bare transport. Routing the refresh call
// through an Executor can recurse into another refresh.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)
}

// RefresherFunc adapts a plain function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (RefreshResult, error)

// Refresh calls f(ctx, refreshToken).
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	return f(ctx, refreshToken)
}

// Observer receives refresh lifecycle notifications. All methods are called synchronously from the
// goroutine that observed the event and must not block.
type Observer interface {
	RefreshStarted()
	RefreshJoined()
	RefreshSucceeded()
	RefreshFailed(reason string)
}

type nopObserver struct{}

func (nopObserver) RefreshStarted()      {}
func (nopObserver) RefreshJoined()       {}
func (nopObserver) RefreshSucceeded()    {}
func (nopObserver) RefreshFailed(string) {}
