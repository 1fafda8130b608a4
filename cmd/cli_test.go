package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/habedi/tokenguard/auth"
	"github.com/habedi/tokenguard/internal/mockapi"
	"github.com/habedi/tokenguard/pkg/clierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

func executeCommand(t *testing.T, stdin string, args ...string) cmdResult {
	t.Helper()
	rootCmd := createRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// newRedisSession starts a mock API and a miniredis instance and logs in with the API's tokens.
// It returns the API and the flags that point a command at both.
func newRedisSession(t *testing.T, opts ...mockapi.Option) (*mockapi.Server, []string) {
	t.Helper()
	api := mockapi.New(opts...)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	mr := miniredis.RunT(t)

	flags := []string{"--api-url", srv.URL, "--store", "redis", "--redis-addr", mr.Addr()}
	access, refresh := api.Tokens()
	res := executeCommand(t, "", append([]string{"login", "-a", access, "-r", refresh}, flags...)...)
	require.NoError(t, res.err)
	return api, flags
}

func TestCreateRootCmd(t *testing.T) {
	rootCmd := createRootCmd()
	assert.Equal(t, "tokenguard", rootCmd.Use)

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
		assert.NotEqual(t, "help", c.Use, "default help command should be replaced")
	}
	for _, want := range []string{"login", "logout", "status", "call", "mock", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd_PrintsInfo(t *testing.T) {
	res := executeCommand(t, "", "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Tokenguard version:")
	assert.Contains(t, res.stdout, "Go version:")
	assert.Contains(t, res.stdout, "Platform:")
}

func TestLoginStatusLogout_SQLite(t *testing.T) {
	t.Setenv("TOKENGUARD_HOME", t.TempDir())

	res := executeCommand(t, "access-token-value\nrefresh-token-value\n", "login")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Login was successful.")

	res = executeCommand(t, "", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "sqlite")
	assert.Contains(t, res.stdout, "acce…alue (18 chars)")
	assert.Contains(t, res.stdout, "unknown")
	assert.Contains(t, res.stdout, "sha256:")

	res = executeCommand(t, "", "status", "--hash", "crc32")
	require.Error(t, res.err)
	assert.Equal(t, clierr.Validation, clierr.FromError(res.err).Type)

	res = executeCommand(t, "", "logout")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Logged out.")

	res = executeCommand(t, "", "status")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Not logged in.")
}

func TestLogin_RequiresRefreshToken(t *testing.T) {
	res := executeCommand(t, "", "login", "--store", "memory", "-a", "access", "-r", "")
	require.Error(t, res.err)
	assert.Equal(t, clierr.Validation, clierr.FromError(res.err).Type)
}

func TestCall_SingleRequest(t *testing.T) {
	_, flags := newRedisSession(t)

	res := executeCommand(t, "", append([]string{"call", "/v1/items/7"}, flags...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `{"id":"7"}`)
}

func TestCall_BurstRefreshesOnce(t *testing.T) {
	api, flags := newRedisSession(t, mockapi.WithRefreshDelay(150*time.Millisecond))
	api.ExpireAccess()

	res := executeCommand(t, "", append([]string{"call", "/v1/me", "-n", "6", "-c", "6", "--watch"}, flags...)...)
	require.NoError(t, res.err, res.stderr)

	assert.Equal(t, int64(1), api.RefreshCalls())
	assert.Contains(t, res.stdout, "REFRESHES")
	assert.Contains(t, res.stderr, "session expired, refreshing")
	assert.Contains(t, res.stderr, "session refreshed")
	assert.Contains(t, res.stderr, "credentials set")

	res = executeCommand(t, "", append([]string{"status"}, flags...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "active")
}

func TestCall_OAuth2RefresherWithClientCredentials(t *testing.T) {
	api, flags := newRedisSession(t, mockapi.WithClient("cli", "s3cret"))
	api.ExpireAccess()

	flags = append(flags, "--oauth2", "--client-id", "cli", "--client-secret", "s3cret")
	res := executeCommand(t, "", append([]string{"call", "/v1/me"}, flags...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `{"user":"demo"}`)
	assert.Equal(t, int64(1), api.RefreshCalls())
}

func TestCall_RevokedSessionExpires(t *testing.T) {
	api, flags := newRedisSession(t)
	api.RevokeRefresh()

	res := executeCommand(t, "", append([]string{"call", "/v1/me"}, flags...)...)
	require.Error(t, res.err)
	ce := clierr.FromError(res.err)
	assert.Equal(t, clierr.SessionExpired, ce.Type)
	assert.Equal(t, 3, ce.Type.ExitCode())
	assert.Equal(t, int64(1), api.RefreshCalls())

	res = executeCommand(t, "", append([]string{"status"}, flags...)...)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Not logged in.")
}

func TestCall_NotFoundIsRequestError(t *testing.T) {
	api, flags := newRedisSession(t)

	res := executeCommand(t, "", append([]string{"call", "/v1/missing", "-n", "2"}, flags...)...)
	require.Error(t, res.err)
	assert.Equal(t, clierr.Request, clierr.FromError(res.err).Type)
	assert.Contains(t, res.stdout, "request failed with status 404")
	assert.Zero(t, api.RefreshCalls())
}

func TestCall_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero count", []string{"call", "/v1/me", "--store", "memory", "-n", "0"}},
		{"too many workers", []string{"call", "/v1/me", "--store", "memory", "-c", "1000"}},
		{"unknown store", []string{"call", "/v1/me", "--store", "etcd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := executeCommand(t, "", tt.args...)
			require.Error(t, res.err)
			assert.Equal(t, clierr.Validation, clierr.FromError(res.err).Type)
		})
	}
}

func TestCall_RequiresPath(t *testing.T) {
	res := executeCommand(t, "", "call", "--store", "memory")
	require.Error(t, res.err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := serve(ctx, &http.Server{Addr: "127.0.0.1:0", Handler: mockapi.New(), ReadHeaderTimeout: time.Second})
	assert.NoError(t, err)
}

func TestSessionState(t *testing.T) {
	now := time.Now()
	at := func(t time.Time) auth.Credentials { return auth.Credentials{ExpiresAt: t} }
	assert.Equal(t, "active", sessionState(auth.Credentials{}, now))
	assert.Equal(t, "active", sessionState(at(now.Add(time.Hour)), now))
	assert.Equal(t, "expiring soon", sessionState(at(now.Add(30*time.Second)), now))
	assert.Equal(t, "expired (renewed on next call)", sessionState(at(now), now))
	assert.Equal(t, "expired (renewed on next call)", sessionState(at(now.Add(-time.Second)), now))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(none)", maskToken(""))
	assert.Equal(t, "*****", maskToken("short"))
	assert.Equal(t, "abcd…wxyz (26 chars)", maskToken("abcdefghijklmnopqrstuvwxyz"))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("TOKENGUARD_TEST_VALUE", "from-env")
	assert.Equal(t, "from-env", envOr("TOKENGUARD_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", envOr("TOKENGUARD_TEST_UNSET", "fallback"))
}

func TestConfig_TokenEndpoint(t *testing.T) {
	cfg := &config{apiURL: "http://api.local/"}
	assert.Equal(t, "http://api.local/token", cfg.tokenEndpoint())
	cfg.tokenURL = "http://auth.local/oauth/token"
	assert.Equal(t, "http://auth.local/oauth/token", cfg.tokenEndpoint())
}
