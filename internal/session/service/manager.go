// Package service implements the session lifecycle state machine: creation,
// refresh-token rotation with reuse detection, revocation, and the
// per-account concurrency cap.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/security"
	"marketplace-auth/internal/session/cache"
	"marketplace-auth/internal/session/domain"
	"marketplace-auth/internal/session/repository"
)

// TokenPair bundles the credentials returned to a freshly authenticated or
// refreshed caller. ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Manager drives session state. It holds no mutable state of its own; all
// session state lives in the durable repository and the cache projection.
type Manager struct {
	sessions    repository.Repository
	cache       *cache.Cache
	tokens      *security.TokenProvider
	log         *slog.Logger
	maxSessions int
}

// NewManager returns a session Manager. maxSessions bounds concurrent
// sessions per account; values < 1 fall back to 5.
func NewManager(sessions repository.Repository, c *cache.Cache, tokens *security.TokenProvider, log *slog.Logger, maxSessions int) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if maxSessions < 1 {
		maxSessions = 5
	}
	return &Manager{
		sessions:    sessions,
		cache:       c,
		tokens:      tokens,
		log:         log,
		maxSessions: maxSessions,
	}
}

// Create allocates a new session for the account and issues both tokens.
// The session record is written in a single insert carrying the refresh
// token's hash, then the per-account cap is enforced by evicting the oldest
// excess sessions (by creation time) from both stores.
func (m *Manager) Create(ctx context.Context, accountID, deviceType, ip string) (*TokenPair, error) {
	sessionID := uuid.New().String()

	refreshToken, refreshExp, err := m.tokens.IssueRefresh(accountID, sessionID)
	if err != nil {
		return nil, err
	}
	accessToken, _, err := m.tokens.IssueAccess(accountID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:               sessionID,
		AccountID:        accountID,
		RefreshTokenHash: security.HashToken(refreshToken),
		DeviceType:       deviceType,
		IP:               ip,
		ExpiresAt:        refreshExp,
		CreatedAt:        now,
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	m.cache.Put(ctx, sessionID, accountID, refreshExp.Sub(now))

	if err := m.evictExcess(ctx, accountID); err != nil {
		// The new session exists and is valid; eviction failure only delays
		// the cap. Surface it in logs and move on.
		m.log.Warn("session eviction failed", "account_id", accountID, "err", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(m.tokens.AccessTTL().Seconds()),
	}, nil
}

func (m *Manager) evictExcess(ctx context.Context, accountID string) error {
	list, err := m.sessions.ListByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	excess := len(list) - m.maxSessions
	for i := 0; i < excess; i++ {
		if err := m.sessions.Delete(ctx, list[i].ID); err != nil {
			return err
		}
		m.cache.Delete(ctx, list[i].ID)
		m.log.Info("evicted oldest session over cap",
			"account_id", accountID, "session_id", list[i].ID)
	}
	return nil
}

// Rotate exchanges a valid refresh token for a fresh token pair. A presented
// token whose session is gone, or whose hash no longer matches the stored
// one, is a reuse event: every session for the account is revoked and
// auth.ErrSessionCompromised is returned.
func (m *Manager) Rotate(ctx context.Context, presentedRefreshToken, ip string) (*TokenPair, error) {
	accountID, sessionID, err := m.tokens.VerifyRefresh(presentedRefreshToken)
	if err != nil {
		return nil, auth.ErrInvalidRefreshToken
	}

	sess, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		// The token verified but its session is gone: it was rotated away and
		// the chain has since been revoked, or revoked outright. Someone is
		// replaying an old token.
		return nil, m.compromised(ctx, accountID, sessionID)
	}
	if sess.Expired(time.Now().UTC()) {
		if err := m.sessions.Delete(ctx, sessionID); err != nil {
			m.log.Warn("expired session cleanup failed", "session_id", sessionID, "err", err)
		}
		m.cache.Delete(ctx, sessionID)
		return nil, auth.ErrInvalidRefreshToken
	}
	if !security.TokenHashEqual(presentedRefreshToken, sess.RefreshTokenHash) {
		return nil, m.compromised(ctx, accountID, sessionID)
	}

	newRefresh, newExp, err := m.tokens.IssueRefresh(accountID, sessionID)
	if err != nil {
		return nil, err
	}
	newAccess, _, err := m.tokens.IssueAccess(accountID, sessionID)
	if err != nil {
		return nil, err
	}

	// Conditional swap keyed on the previous hash: of two concurrent
	// rotations with the same still-valid token only one lands, and the
	// loser is handled as reuse.
	oldHash := security.HashToken(presentedRefreshToken)
	swapped, err := m.sessions.RotateRefreshHash(ctx, sessionID, oldHash, security.HashToken(newRefresh), newExp, ip)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, m.compromised(ctx, accountID, sessionID)
	}
	m.cache.Put(ctx, sessionID, accountID, time.Until(newExp))

	return &TokenPair{
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(m.tokens.AccessTTL().Seconds()),
	}, nil
}

func (m *Manager) compromised(ctx context.Context, accountID, sessionID string) error {
	m.log.Warn("refresh token reuse detected, revoking all account sessions",
		"account_id", accountID, "session_id", sessionID)
	ids, err := m.sessions.DeleteAllByAccount(ctx, accountID)
	if err != nil {
		m.log.Error("bulk revocation failed after reuse detection",
			"account_id", accountID, "err", err)
		return auth.ErrSessionCompromised
	}
	m.cache.Delete(ctx, ids...)
	m.cache.Delete(ctx, sessionID)
	return auth.ErrSessionCompromised
}

// Revoke deletes the session from both stores. Idempotent: revoking a
// session that is already gone is not an error.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	m.cache.Delete(ctx, sessionID)
	return nil
}

// RevokeAll deletes every session belonging to the account from both stores.
func (m *Manager) RevokeAll(ctx context.Context, accountID string) error {
	ids, err := m.sessions.DeleteAllByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	m.cache.Delete(ctx, ids...)
	return nil
}

// IsValid reports whether the session currently exists and is unexpired.
// Cache-first: a present entry is sufficient. On a miss the durable store
// decides, and a valid record re-warms the cache with its remaining TTL.
func (m *Manager) IsValid(ctx context.Context, sessionID string) (bool, error) {
	_, hit, err := m.cache.Get(ctx, sessionID)
	if err != nil {
		m.log.Warn("session cache read failed, falling back to durable store",
			"session_id", sessionID, "err", err)
	}
	if hit {
		return true, nil
	}

	sess, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	now := time.Now().UTC()
	if sess.Expired(now) {
		return false, nil
	}
	m.cache.Put(ctx, sessionID, sess.AccountID, sess.ExpiresAt.Sub(now))
	return true, nil
}

// RunSweeper deletes expired session rows every interval until ctx is done.
// Cache entries for swept rows lapse on their own TTL.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.sessions.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				m.log.Warn("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				m.log.Info("swept expired sessions", "count", n)
			}
		}
	}
}
