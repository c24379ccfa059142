// Package cache is the write-through fast-lookup projection of session
// validity. A present entry is authoritative; a miss proves nothing and the
// caller must fall back to the durable store.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketplace-auth/internal/faststore"
)

const keyPrefix = "session:"

// Cache maps session id -> owning account id with a TTL mirroring the
// session's remaining durable lifetime.
type Cache struct {
	store faststore.Store
	log   *slog.Logger
}

// New returns a session cache over the given fast store.
func New(store faststore.Store, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{store: store, log: log}
}

// Put writes the cache entry. Failures are logged and swallowed: the durable
// store remains authoritative on the next miss.
func (c *Cache) Put(ctx context.Context, sessionID, accountID string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.store.Set(ctx, keyPrefix+sessionID, accountID, ttl); err != nil {
		c.log.Warn("session cache: put failed", "session_id", sessionID, "err", err)
	}
}

// Get returns the owning account id and ok=true on a hit. A miss or a fast
// store failure returns ok=false; the error distinguishes the two so callers
// can log store failures without trusting them as misses.
func (c *Cache) Get(ctx context.Context, sessionID string) (accountID string, ok bool, err error) {
	val, err := c.store.Get(ctx, keyPrefix+sessionID)
	if errors.Is(err, faststore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Delete removes the entries for the given session ids. Failures are logged
// and swallowed.
func (c *Cache) Delete(ctx context.Context, sessionIDs ...string) {
	if len(sessionIDs) == 0 {
		return
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = keyPrefix + id
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.log.Warn("session cache: delete failed", "sessions", len(keys), "err", err)
	}
}
