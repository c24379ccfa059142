// Package domain holds the Session record.
package domain

import "time"

// Session is one authenticated device or browser instance. The stored
// RefreshTokenHash always reflects the most recently issued refresh token;
// any other presented token for this session id is proof of reuse. Revoked
// sessions are deleted, not flagged.
type Session struct {
	ID               string
	AccountID        string
	RefreshTokenHash string // SHA-256 hex of the current refresh token
	DeviceType       string // optional opaque label ("ios", "web", ...)
	IP               string // origin IP at creation or last rotation
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Expired reports whether the session's absolute expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
