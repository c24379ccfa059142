package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketplace-auth/internal/session/domain"
)

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a session repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var (
		s              domain.Session
		deviceType, ip *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, refresh_token_hash, device_type, ip, expires_at, created_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &s.AccountID, &s.RefreshTokenHash, &deviceType, &ip, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if deviceType != nil {
		s.DeviceType = *deviceType
	}
	if ip != nil {
		s.IP = *ip
	}
	return &s, nil
}

// ListByAccount returns all sessions for the account, oldest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, refresh_token_hash, device_type, ip, expires_at, created_at
		FROM sessions
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var (
			s              domain.Session
			deviceType, ip *string
		)
		if err := rows.Scan(&s.ID, &s.AccountID, &s.RefreshTokenHash, &deviceType, &ip, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		if deviceType != nil {
			s.DeviceType = *deviceType
		}
		if ip != nil {
			s.IP = *ip
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Create inserts the session row. The session must have ID and hash set;
// the whole record is written in one statement.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, account_id, refresh_token_hash, device_type, ip, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.AccountID, s.RefreshTokenHash,
		nullIfEmpty(s.DeviceType), nullIfEmpty(s.IP), s.ExpiresAt, s.CreatedAt)
	return err
}

// RotateRefreshHash performs the compare-and-swap rotation: the update only
// lands when the stored hash still equals oldHash, so of two racing rotations
// with the same token exactly one succeeds.
func (r *PostgresRepository) RotateRefreshHash(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time, ip string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET refresh_token_hash = $3, expires_at = $4, ip = $5
		WHERE id = $1 AND refresh_token_hash = $2
	`, id, oldHash, newHash, expiresAt, nullIfEmpty(ip))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the session row. Idempotent.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteAllByAccount removes every session for the account and returns the
// deleted ids.
func (r *PostgresRepository) DeleteAllByAccount(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM sessions WHERE account_id = $1 RETURNING id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpired sweeps sessions whose expiry precedes cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
