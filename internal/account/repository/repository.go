package repository

import (
	"context"
	"time"

	"marketplace-auth/internal/account/domain"
	"marketplace-auth/internal/auth"
)

// Repository defines persistence for accounts. Lookups return (nil, nil) when
// no row matches; errors are database failures only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByExternalID looks an account up by the unique identifier of the
	// given credential kind (phone number, Google subject, or Apple subject).
	GetByExternalID(ctx context.Context, kind auth.CredentialKind, externalID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	// Update persists identifier links, profile fields, and badges.
	Update(ctx context.Context, a *domain.Account) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}
