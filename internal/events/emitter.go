// Package events publishes authentication lifecycle events to a stream for
// downstream consumers (fraud review, analytics). Emission is best effort:
// failures are logged and never surfaced to the authentication path.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the auth service.
const (
	TypeSignup        = "auth.signup"
	TypeLogin         = "auth.login"
	TypeRefresh       = "auth.refresh"
	TypeReuseDetected = "auth.reuse_detected"
	TypeLogout        = "auth.logout"
)

// Event is one authentication lifecycle occurrence.
type Event struct {
	Type      string    `json:"type"`
	AccountID string    `json:"account_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	IP        string    `json:"ip,omitempty"`
	At        time.Time `json:"at"`
}

// Emitter publishes events. Implementations must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is
// not blocked. emitter may be nil; EmitAsync then returns immediately. The
// goroutine uses a detached context so request cancellation does not abort an
// in-flight emit.
func EmitAsync(emitter Emitter, event Event) {
	if emitter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			slog.Default().Warn("auth event emit failed", "type", event.Type, "err", err)
		}
	}()
}
