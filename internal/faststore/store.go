// Package faststore abstracts the ephemeral key-value backend used for the
// session cache, verification challenges, and rate counters. The durable
// store is always the source of truth; nothing kept here is authoritative
// proof of absence.
package faststore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is missing or expired.
var ErrNotFound = errors.New("faststore: key not found")

// Store is the narrow fast-store surface the auth subsystem consumes.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key with the given TTL. ttl must be positive.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Increment adds one to the counter at key and returns the new value.
	// The window TTL is set when the counter is created and is not extended
	// by later increments (fixed-window semantics).
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}
