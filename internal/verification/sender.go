package verification

import (
	"context"
	"log/slog"
)

// Sender delivers a verification code to a phone number. Real SMS/voice
// gateway integration lives behind this interface and outside this module.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender is the development Sender: it logs the code instead of sending
// it. Never enable outside development.
type LogSender struct {
	Log *slog.Logger
}

// Send logs the code at INFO.
func (s LogSender) Send(ctx context.Context, phone, code string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("verification code issued (dev sender, not delivered)", "phone", phone, "code", code)
	return nil
}
