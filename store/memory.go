package store

import (
	"context"
	"sync"

	"github.com/habedi/tokenguard/auth"
)

type memoryBackend struct {
	mu    sync.RWMutex
	creds *auth.Credentials
}

// NewMemoryBackend returns a Backend that keeps the pair in process memory.
func NewMemoryBackend() Backend {
	return &memoryBackend{}
}

func (m *memoryBackend) Load(ctx context.Context) (*auth.Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return nil, nil
	}
	c := *m.creds
	return &c, nil
}

func (m *memoryBackend) Save(ctx context.Context, creds auth.Credentials) error {
	m.mu.Lock()
	m.creds = &creds
	m.mu.Unlock()
	return nil
}

func (m *memoryBackend) Delete(ctx context.Context) error {
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()
	return nil
}
