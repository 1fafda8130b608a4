package auth

import "time"

// Credentials is the access/refresh token pair held by a CredentialStore.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero when the issuer did not report an expiry
}

// Complete reports whether both tokens are present.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires within d of now.
// Credentials without a known expiry never expire.
func (c Credentials) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(c.ExpiresAt)
}

// RefreshResult is the outcome of a Refresher call. Build it with Refreshed or RefreshFailed.
type RefreshResult struct {
	ok     bool
	creds  Credentials
	reason string
}

// Refreshed returns a successful result carrying the new credential pair.
func Refreshed(creds Credentials) RefreshResult {
	return RefreshResult{ok: true, creds: creds}
}

// RefreshFailed returns a failed result with a human-readable reason.
func RefreshFailed(reason string) RefreshResult {
	return RefreshResult{reason: reason}
}

// Succeeded is true only for a Refreshed result that carries both a new access and refresh token.
func (r RefreshResult) Succeeded() bool {
	return r.ok && r.creds.Complete()
}

// Credentials returns the new pair. It is the zero value for failed results.
func (r RefreshResult) Credentials() Credentials {
	if !r.ok {
		return Credentials{}
	}
	return r.creds
}

// Reason describes why the refresh did not succeed.
func (r RefreshResult) Reason() string {
	switch {
	case r.Succeeded():
		return ""
	case r.ok:
		return "refresh response is missing a token"
	case r.reason == "":
		return "refresh rejected"
	default:
		return r.reason
	}
}
