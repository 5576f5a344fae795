package gist

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory gist store. It's the default store and
// suitable for single-server deployments and tests. For durable
// multi-server deployments, use RedisStore, PGStore, or S3Store.
type MemoryStore struct {
	mu     sync.RWMutex
	gists  map[string]string
	closed bool
}

// NewMemoryStore creates a new in-memory gist store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		gists: make(map[string]string),
	}
}

// Load retrieves canonical content if it exists.
func (m *MemoryStore) Load(ctx context.Context, gistID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", false, ErrStoreClosed{}
	}

	content, ok := m.gists[gistID]
	return content, ok, nil
}

// Save stores canonical content, overwriting any prior value.
func (m *MemoryStore) Save(ctx context.Context, gistID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	m.gists[gistID] = content
	return nil
}

// Delete removes a gist from the store.
func (m *MemoryStore) Delete(ctx context.Context, gistID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}

	delete(m.gists, gistID)
	return nil
}

// Close shuts down the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.gists = nil
	return nil
}

// Count returns the number of stored gists.
// This is for monitoring/testing purposes.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.gists)
}
