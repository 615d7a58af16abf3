package presence

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

// Memory is an in-process PresenceStore for development and tests.
// Expired keys are dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.entries[key] = memoryEntry{value: value, expires: expires}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Get returns the live value of key.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}
