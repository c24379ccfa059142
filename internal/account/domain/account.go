// Package domain holds the Account aggregate.
package domain

import (
	"slices"
	"time"
)

// Account is one end-user identity. Each external identifier (phone, Google
// subject, Apple subject) maps to at most one account; email is the linking
// key across credential paths. Accounts are never deleted by this subsystem.
type Account struct {
	ID        string
	Phone     string // E.164, "" when the phone path was never used
	Email     string
	Name      string
	AvatarURL string
	GoogleID  string // Google token subject, "" when unlinked
	AppleID   string // Apple token subject, "" when unlinked

	// Badges records which credential paths have verified this account
	// (PHONE, GOOGLE, APPLE).
	Badges []string

	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasBadge reports whether the account carries the given verification badge.
func (a *Account) HasBadge(badge string) bool {
	return slices.Contains(a.Badges, badge)
}

// AddBadge appends badge if not already present. Empty badges are ignored.
func (a *Account) AddBadge(badge string) {
	if badge == "" || a.HasBadge(badge) {
		return
	}
	a.Badges = append(a.Badges, badge)
}
