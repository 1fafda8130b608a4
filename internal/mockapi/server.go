// Package mockapi is a small REST backend that issues rotating OAuth2-style tokens and rejects
// stale access tokens with 401. It backs the tests and the `tokenguard mock` command.
package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTTL = 15 * time.Minute
	issuer           = "tokenguard-mock"
)

// Server holds the currently valid token pair. Only the latest pair is accepted.
type Server struct {
	mu        sync.Mutex
	access    string
	refresh   string
	key       []byte
	accessTTL time.Duration
	delay     time.Duration

	clientID   string
	secretHash []byte

	refreshCalls atomic.Int64
	apiCalls     atomic.Int64
	rejected     atomic.Int64

	router *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithRefreshDelay makes the token endpoint wait before answering.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithClient makes the token endpoint require these client credentials. Only a bcrypt hash of the
// secret is kept.
func WithClient(id, secret string) Option {
	return func(s *Server) {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash client secret")
			return
		}
		s.clientID, s.secretHash = id, hash
	}
}

// New creates a Server with a freshly issued token pair.
func New(opts ...Option) *Server {
	s := &Server{
		key:       []byte(uuid.NewString()),
		accessTTL: defaultAccessTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rotate()
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/token", s.handleToken).Methods("POST")

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.requireBearer)
	api.HandleFunc("/me", s.handleMe).Methods("GET")
	api.HandleFunc("/items/{id}", s.handleItem).Methods("GET")
	api.HandleFunc("/echo", s.handleEcho).Methods("POST")
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Tokens returns the currently valid pair.
func (s *Server) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh
}

// ExpireAccess invalidates the current access token while keeping the refresh token usable.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	s.access = s.mintAccess()
	s.mu.Unlock()
}

// RevokeRefresh invalidates both tokens so the next refresh fails with invalid_grant.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	s.access = s.mintAccess()
	s.refresh = uuid.NewString()
	s.mu.Unlock()
}

// RefreshCalls is the number of requests the token endpoint answered.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// APICalls is the number of requests to /v1 routes, rejected ones included.
func (s *Server) APICalls() int64 { return s.apiCalls.Load() }

// Rejected is the number of /v1 requests answered with 401.
func (s *Server) Rejected() int64 { return s.rejected.Load() }

func (s *Server) rotate() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked()
}

// redeem consumes refreshToken and issues a new pair. A token is redeemable exactly once.
func (s *Server) redeem(refreshToken string) (access, refresh string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if refreshToken != s.refresh {
		return "", "", false
	}
	access, refresh = s.rotateLocked()
	return access, refresh, true
}

// rotateLocked replaces both tokens. Callers hold s.mu.
func (s *Server) rotateLocked() (access, refresh string) {
	s.access = s.mintAccess()
	s.refresh = uuid.NewString()
	return s.access, s.refresh
}

// mintAccess signs a short-lived JWT. Callers hold s.mu.
func (s *Server) mintAccess() string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   "demo",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		// HS256 with a non-empty key does not fail.
		log.Error().Err(err).Msg("Failed to sign access token")
		return uuid.NewString()
	}
	return signed
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	if !s.authenticateClient(r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")) {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "only refresh_token is supported")
		return
	}

	access, refresh, ok := s.redeem(r.PostForm.Get("refresh_token"))
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid or expired")
		return
	}
	log.Debug().Msg("Mock API issued a new token pair")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int64(s.accessTTL / time.Second),
	})
}

func (s *Server) authenticateClient(id, secret string) bool {
	if s.secretHash == nil {
		return true
	}
	return id == s.clientID && bcrypt.CompareHashAndPassword(s.secretHash, []byte(secret)) == nil
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.apiCalls.Add(1)
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		valid := ok && token != "" && token == s.access
		s.mu.Unlock()
		if !valid {
			s.rejected.Add(1)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"user": "demo"})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"id": mux.Vars(r)["id"]})
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
