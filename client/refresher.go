package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habedi/tokenguard/auth"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// FormRefresher implements auth.Refresher with a refresh_token grant posted as a form.
// It uses its own HTTP client and never goes through an auth.Executor.
type FormRefresher struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client // nil means a plain client with a 30s timeout
}

var _ auth.Refresher = (*FormRefresher)(nil)

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh sends the refresh token to the token endpoint. A 400 or 401 answer means the refresh
// token was rejected and yields a failed result; transport problems and other statuses are errors.
func (r *FormRefresher) Refresh(ctx context.Context, refreshToken string) (auth.RefreshResult, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	if r.ClientID != "" {
		form.Set("client_id", r.ClientID)
	}
	if r.ClientSecret != "" {
		form.Set("client_secret", r.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return auth.RefreshResult{}, fmt.Errorf("failed to create token refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return auth.RefreshResult{}, fmt.Errorf("failed to post form for token refresh: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return auth.RefreshResult{}, fmt.Errorf("failed to read token refresh response: %w", err)
	}

	var result tokenResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil && resp.StatusCode < 300 {
			return auth.RefreshResult{}, fmt.Errorf("failed to parse token refresh response: %w", err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return auth.RefreshFailed(rejectionReason(result, resp.StatusCode)), nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return auth.RefreshResult{}, newAPIError(req, resp.StatusCode, body)
	case result.Error != "":
		return auth.RefreshFailed(rejectionReason(result, resp.StatusCode)), nil
	}

	newRefresh := result.RefreshToken
	if newRefresh == "" {
		// The issuer keeps the old refresh token valid when it does not rotate it.
		newRefresh = refreshToken
	}
	creds := auth.Credentials{
		AccessToken:  result.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    ExpiresAt(result.AccessToken, result.ExpiresIn, time.Now()),
	}
	log.Debug().Time("expires_at", creds.ExpiresAt).Msg("Token endpoint issued new credentials")
	return auth.Refreshed(creds), nil
}

func (r *FormRefresher) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func rejectionReason(result tokenResponse, status int) string {
	switch {
	case result.ErrorDescription != "":
		return result.ErrorDescription
	case result.Error != "":
		return result.Error
	default:
		return fmt.Sprintf("token endpoint returned %d", status)
	}
}

// OAuth2Refresher implements auth.Refresher with golang.org/x/oauth2.
type OAuth2Refresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client // optional; passed to oauth2 through the context
}

var _ auth.Refresher = (*OAuth2Refresher)(nil)

// Refresh exchanges refreshToken through the config's token endpoint. Errors the endpoint
// reports (oauth2.RetrieveError) are failed results; anything else is returned as an error.
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (auth.RefreshResult, error) {
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	tok, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			reason := retrieveErr.ErrorDescription
			if reason == "" {
				reason = retrieveErr.ErrorCode
			}
			if reason == "" {
				reason = retrieveErr.Error()
			}
			return auth.RefreshFailed(reason), nil
		}
		return auth.RefreshResult{}, fmt.Errorf("oauth2 token refresh: %w", err)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = TokenExpiry(tok.AccessToken)
	}
	return auth.Refreshed(auth.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}), nil
}
