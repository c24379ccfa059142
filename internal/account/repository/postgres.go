package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketplace-auth/internal/account/domain"
	"marketplace-auth/internal/auth"
)

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an account repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const accountColumns = `
	id, phone, email, name, avatar_url, google_id, apple_id,
	badges, last_active_at, created_at, updated_at`

// GetByID returns the account for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getWhere(ctx, "id = $1", id)
}

// GetByExternalID returns the account owning the external identifier for the
// given credential kind, or nil if not found.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, kind auth.CredentialKind, externalID string) (*domain.Account, error) {
	switch kind {
	case auth.KindPhone:
		return r.getWhere(ctx, "phone = $1", externalID)
	case auth.KindGoogle:
		return r.getWhere(ctx, "google_id = $1", externalID)
	case auth.KindApple:
		return r.getWhere(ctx, "apple_id = $1", externalID)
	default:
		return nil, nil
	}
}

// GetByEmail returns the account for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getWhere(ctx, "email = $1", email)
}

func (r *PostgresRepository) getWhere(ctx context.Context, where string, arg any) (*domain.Account, error) {
	var (
		a                                            domain.Account
		phone, email, name, avatar, googleID, appleID *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT`+accountColumns+`
		FROM accounts
		WHERE `+where, arg).Scan(
		&a.ID, &phone, &email, &name, &avatar, &googleID, &appleID,
		&a.Badges, &a.LastActiveAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Phone = deref(phone)
	a.Email = deref(email)
	a.Name = deref(name)
	a.AvatarURL = deref(avatar)
	a.GoogleID = deref(googleID)
	a.AppleID = deref(appleID)
	return &a, nil
}

// Create inserts the account. The account must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, phone, email, name, avatar_url, google_id, apple_id,
			badges, last_active_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID,
		nullIfEmpty(a.Phone), nullIfEmpty(a.Email), nullIfEmpty(a.Name),
		nullIfEmpty(a.AvatarURL), nullIfEmpty(a.GoogleID), nullIfEmpty(a.AppleID),
		a.Badges, a.LastActiveAt, a.CreatedAt, a.UpdatedAt)
	return err
}

// Update persists identifier links, profile fields, and badges for the account.
func (r *PostgresRepository) Update(ctx context.Context, a *domain.Account) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET phone = $2, email = $3, name = $4, avatar_url = $5,
			google_id = $6, apple_id = $7, badges = $8, updated_at = $9
		WHERE id = $1
	`, a.ID,
		nullIfEmpty(a.Phone), nullIfEmpty(a.Email), nullIfEmpty(a.Name),
		nullIfEmpty(a.AvatarURL), nullIfEmpty(a.GoogleID), nullIfEmpty(a.AppleID),
		a.Badges, time.Now().UTC())
	return err
}

// TouchLastActive sets the account's last-active timestamp.
func (r *PostgresRepository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET last_active_at = $2 WHERE id = $1
	`, id, at)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
