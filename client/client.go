package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habedi/tokenguard/auth"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 30 * time.Second

// TokenSource provides the access token to send with each attempt.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client calls a REST API with bearer authentication. Every call goes through an auth.Executor,
// so an expired access token is refreshed once and the call is replayed with the new token.
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	exec      *auth.Executor
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the API at baseURL.
func New(baseURL string, tokens TokenSource, exec *auth.Executor, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		tokens:    tokens,
		exec:      exec,
		userAgent: "tokenguard",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends a request and returns the response body of a 2xx response.
// Non-2xx responses are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	return auth.Execute(ctx, c.exec, func(ctx context.Context) ([]byte, error) {
		return c.attempt(ctx, method, path, body)
	})
}

// GetJSON fetches path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeJSON(body, out)
}

// PostJSON sends in as JSON to path and decodes the response into out, if out is not nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	body, err := c.Do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeJSON(body, out)
}

// attempt performs one request. The access token is read per attempt so a replay after a
// refresh carries the new token.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token: %w", err)
	}
	req, err := c.createRequest(ctx, method, path, accessToken, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(req)
	if err != nil {
		return nil, err
	}
	return readResponseBody(resp)
}

// createRequest creates an HTTP request with authorization.
func (c *Client) createRequest(ctx context.Context, method, path, accessToken string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	urlStr := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", urlStr).Msg("Failed to create HTTP request object")
		return nil, err
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// sendRequest sends an HTTP request and checks the status.
func (c *Client) sendRequest(req *http.Request) (*http.Response, error) {
	logger := log.With().Str("method", req.Method).Str("url", req.URL.String()).
		Str("request_id", req.Header.Get("X-Request-ID")).Logger()

	logger.Debug().Msg("Sending HTTP request")
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("HTTP request failed")
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		logger.Debug().Int("status", resp.StatusCode).Msg("HTTP request returned non-OK status")
		return nil, newAPIError(req, resp.StatusCode, bodyBytes)
	}
	logger.Debug().Int("status", resp.StatusCode).Msg("HTTP request successful")
	return resp, nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("url", resp.Request.URL.String()).Msg("Failed to read response body")
		return nil, err
	}
	return body, nil
}

func decodeJSON(body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		log.Error().Err(err).Str("body_preview", string(body[:min(len(body), 200)])).Msg("Failed to parse response JSON")
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}
