// Package store holds the credential pair used by the executor and notifies subscribers whenever
// it changes.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/habedi/tokenguard/auth"
	"github.com/rs/zerolog/log"
)

// ErrNoCredentials is returned by Credentials when nothing is stored.
var ErrNoCredentials = errors.New("no credentials stored; please log in first")

// Backend persists a single credential pair. Load returns nil when nothing is stored.
type Backend interface {
	Load(ctx context.Context) (*auth.Credentials, error)
	Save(ctx context.Context, creds auth.Credentials) error
	Delete(ctx context.Context) error
}

// EventKind says what happened to the stored credentials.
type EventKind int

const (
	EventSet EventKind = iota + 1
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is a change notification.
type Event struct {
	Kind EventKind
	At   time.Time
}

const subscriberBuffer = 16

// Store implements auth.CredentialStore on top of a Backend.
type Store struct {
	backend Backend

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

var _ auth.CredentialStore = (*Store)(nil)

// New creates a Store that persists to backend.
func New(backend Backend) *Store {
	return &Store{backend: backend, subs: make(map[int]chan Event)}
}

// Credentials returns the stored pair, or ErrNoCredentials.
func (s *Store) Credentials(ctx context.Context) (auth.Credentials, error) {
	creds, err := s.backend.Load(ctx)
	if err != nil {
		return auth.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		return auth.Credentials{}, ErrNoCredentials
	}
	return *creds, nil
}

// AccessToken returns the stored access token, or an empty string.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	creds, err := s.backend.Load(ctx)
	if err != nil || creds == nil {
		return "", err
	}
	return creds.AccessToken, nil
}

// RefreshToken returns the stored refresh token, or an empty string.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	creds, err := s.backend.Load(ctx)
	if err != nil || creds == nil {
		return "", err
	}
	return creds.RefreshToken, nil
}

// SetCredentials stores creds and notifies subscribers.
func (s *Store) SetCredentials(ctx context.Context, creds auth.Credentials) error {
	if err := s.backend.Save(ctx, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	log.Debug().Msg("Credentials stored")
	s.publish(EventSet)
	return nil
}

// ClearCredentials removes the stored pair and notifies subscribers.
func (s *Store) ClearCredentials(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	log.Debug().Msg("Credentials cleared")
	s.publish(EventCleared)
	return nil
}

// Subscribe returns a channel of change events and a function that unsubscribes and closes it.
// Events are dropped for subscribers that fall behind.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(kind EventKind) {
	ev := Event{Kind: kind, At: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().Int("subscriber", id).Str("event", kind.String()).Msg("Dropping credential event for slow subscriber")
		}
	}
}
