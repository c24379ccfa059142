package faststore

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

type counter struct {
	n         int64
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation used in tests and for
// single-process development runs. Expired entries are dropped lazily on read.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]entry
	counters map[string]counter
	nowF     func() time.Time
}

// NewMemoryStore returns a new in-memory fast store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]entry),
		counters: make(map[string]counter),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the store's clock. Test hook.
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowF = now
}

// Get returns the value for key, or ErrNotFound when absent or expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// Set stores value under key with the given TTL.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expiresAt: s.nowF().Add(ttl)}
	return nil
}

// Delete removes the given keys from both the entry and counter spaces.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
		delete(s.counters, k)
	}
	return nil
}

// Increment adds one to the counter at key, starting a fresh fixed window
// when the key is new or the previous window has lapsed.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	c, ok := s.counters[key]
	if !ok || !c.expiresAt.After(now) {
		c = counter{n: 0, expiresAt: now.Add(window)}
	}
	c.n++
	s.counters[key] = c
	return c.n, nil
}
