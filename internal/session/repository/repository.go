package repository

import (
	"context"
	"time"

	"marketplace-auth/internal/session/domain"
)

// Repository defines persistence for sessions. GetByID returns (nil, nil)
// when no row matches; errors are database failures only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByAccount returns all sessions for the account ordered by creation
	// time, oldest first.
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// RotateRefreshHash atomically replaces the session's refresh hash,
	// expiry, and IP, but only when the stored hash still equals oldHash.
	// Returns false when the session is gone or the hash no longer matches,
	// which the caller must treat as a reuse event.
	RotateRefreshHash(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time, ip string) (bool, error)
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteAllByAccount removes every session for the account and returns
	// the ids of the deleted rows so cache entries can be purged.
	DeleteAllByAccount(ctx context.Context, accountID string) ([]string, error)
	// DeleteExpired removes sessions whose absolute expiry precedes cutoff
	// and returns how many rows were swept.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
