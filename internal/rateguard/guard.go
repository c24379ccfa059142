// Package rateguard bounds abuse of the code-send and login paths with
// fixed-window counters over the fast store.
package rateguard

import (
	"context"
	"log/slog"
	"time"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/faststore"
)

// Guard admits or rejects attempts keyed by an arbitrary string (a phone
// number, an IP). When the fast store is unhealthy the guard fails open:
// availability of the login path takes precedence over strict enforcement.
type Guard struct {
	store faststore.Store
	log   *slog.Logger
}

// New returns a Guard over the given fast store.
func New(store faststore.Store, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{store: store, log: log}
}

// Admit counts one attempt for key and returns nil while the count within the
// current window is at most maxAttempts. Over the limit it returns a
// *auth.RateLimitedError carrying the window as a retry-after hint. A fast
// store failure is logged and the attempt is allowed.
func (g *Guard) Admit(ctx context.Context, key string, maxAttempts int, window time.Duration) error {
	n, err := g.store.Increment(ctx, "rate:"+key, window)
	if err != nil {
		g.log.Warn("rateguard: counter unavailable, failing open", "key", key, "err", err)
		return nil
	}
	if n > int64(maxAttempts) {
		return &auth.RateLimitedError{Key: key, RetryAfter: window}
	}
	return nil
}

// Reset clears the counter for key. Used when a guarded operation succeeds
// and past failures should no longer count against the caller.
func (g *Guard) Reset(ctx context.Context, key string) {
	if err := g.store.Delete(ctx, "rate:"+key); err != nil {
		g.log.Warn("rateguard: reset failed", "key", key, "err", err)
	}
}
