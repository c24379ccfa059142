// Package auth defines the shared vocabulary of the authentication subsystem:
// the credential kinds, the verified external identity, and the closed error
// taxonomy that callers switch on with errors.Is / errors.As.
package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for authentication outcomes; the HTTP layer maps them to
// status codes, callers inside the subsystem never inspect message text.
var (
	// ErrInvalidCredential is returned for a wrong or expired verification
	// code and for malformed federated identity tokens. User-correctable.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrInvalidRefreshToken is returned when a refresh token is expired or
	// unparseable. The caller must re-authenticate from scratch.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

	// ErrSessionCompromised is returned when refresh token reuse is detected.
	// Every session belonging to the account has been revoked.
	ErrSessionCompromised = errors.New("refresh token reuse detected; all sessions revoked")

	// ErrAccountConflict is returned when linking a verified identity would
	// violate the one-account-per-identifier invariant.
	ErrAccountConflict = errors.New("external identity already linked to another account")

	// ErrUnauthorized is returned by the authenticate gate for missing,
	// invalid, or revoked access credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// RateLimitedError reports that a rate-guarded operation was rejected.
// RetryAfter is a hint for the caller; it is the full guard window, not the
// exact remainder.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// IsRateLimited reports whether err is a rate-limit rejection and returns the
// retry-after hint when it is.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
