package store

import (
	"context"
	"sync"
	"time"

	"suburbiq/internal/model"
)

type contextEntry struct {
	value   model.UserContext
	expires time.Time
}

// MemoryContextStore is an in-process ContextStore with per-entry expiry.
// A zero ttl keeps entries until Reset.
type MemoryContextStore struct {
	mu      sync.Mutex
	entries map[string]contextEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryContextStore creates an in-memory context store
func NewMemoryContextStore(ttl time.Duration) *MemoryContextStore {
	return &MemoryContextStore{
		entries: make(map[string]contextEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *MemoryContextStore) WithClock(now func() time.Time) *MemoryContextStore {
	s.now = now
	return s
}

// Get implements ContextStore
func (s *MemoryContextStore) Get(ctx context.Context, sessionID string) (model.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(sessionID).Clone(), nil
}

// Update implements ContextStore
func (s *MemoryContextStore) Update(ctx context.Context, sessionID string, patch model.ContextPatch) (model.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := patch.Apply(s.load(sessionID).Clone())
	entry := contextEntry{value: merged}
	if s.ttl > 0 {
		entry.expires = s.now().Add(s.ttl)
	}
	s.entries[sessionID] = entry
	return merged.Clone(), nil
}

// Reset implements ContextStore
func (s *MemoryContextStore) Reset(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

// load must be called with mu held
func (s *MemoryContextStore) load(sessionID string) model.UserContext {
	entry, ok := s.entries[sessionID]
	if !ok {
		return model.UserContext{}
	}
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		delete(s.entries, sessionID)
		return model.UserContext{}
	}
	return entry.value
}

type averageEntry struct {
	value   model.StateAverage
	expires time.Time
}

// MemoryAverageCache is an in-process AverageCache. A zero ttl retains
// entries for the process lifetime.
type MemoryAverageCache struct {
	mu      sync.RWMutex
	entries map[string]averageEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryAverageCache creates an in-memory average cache
func NewMemoryAverageCache(ttl time.Duration) *MemoryAverageCache {
	return &MemoryAverageCache{
		entries: make(map[string]averageEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests
func (c *MemoryAverageCache) WithClock(now func() time.Time) *MemoryAverageCache {
	c.now = now
	return c
}

// Get implements AverageCache
func (c *MemoryAverageCache) Get(ctx context.Context, key string) (model.StateAverage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return model.StateAverage{}, false, nil
	}
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		return model.StateAverage{}, false, nil
	}
	return entry.value, true, nil
}

// Set implements AverageCache
func (c *MemoryAverageCache) Set(ctx context.Context, key string, avg model.StateAverage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := averageEntry{value: avg}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = entry
	return nil
}
