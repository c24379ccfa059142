// Package verification manages phone verification challenges: short-lived
// 6-digit codes living only in the fast store, bounded by per-phone send and
// check windows.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nyaruka/phonenumbers"

	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/faststore"
	"marketplace-auth/internal/rateguard"
	"marketplace-auth/internal/security"
)

const codeKeyPrefix = "verify:code:"

// Config bounds challenge lifetime and abuse windows.
type Config struct {
	// CodeTTL is how long an issued code stays redeemable. Default 5m.
	CodeTTL time.Duration
	// SendMax / SendWindow bound code sends per phone. Default 5 per hour.
	SendMax    int
	SendWindow time.Duration
	// CheckMax / CheckWindow bound verification attempts per phone.
	// Default 10 per 15 minutes.
	CheckMax    int
	CheckWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.CodeTTL <= 0 {
		c.CodeTTL = 5 * time.Minute
	}
	if c.SendMax <= 0 {
		c.SendMax = 5
	}
	if c.SendWindow <= 0 {
		c.SendWindow = time.Hour
	}
	if c.CheckMax <= 0 {
		c.CheckMax = 10
	}
	if c.CheckWindow <= 0 {
		c.CheckWindow = 15 * time.Minute
	}
	return c
}

// Service issues and redeems phone verification challenges. Stateless apart
// from the fast store; safe for concurrent use.
type Service struct {
	store  faststore.Store
	guard  *rateguard.Guard
	sender Sender
	log    *slog.Logger
	cfg    Config
}

// NewService returns a verification Service.
func NewService(store faststore.Store, guard *rateguard.Guard, sender Sender, log *slog.Logger, cfg Config) *Service {
	if log == nil {
		log = slog.Default()
	}
	if sender == nil {
		sender = LogSender{Log: log}
	}
	return &Service{store: store, guard: guard, sender: sender, log: log, cfg: cfg.withDefaults()}
}

// NormalizePhone parses raw into E.164 form. Numbers must carry a country
// code ("+14155551234"); anything unparseable or invalid fails with
// auth.ErrInvalidCredential.
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", fmt.Errorf("%w: %s", auth.ErrInvalidCredential, "unparseable phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %s", auth.ErrInvalidCredential, "invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// RequestCode issues a fresh challenge for phone and hands the plaintext code
// to the Sender. Only the code's hash is stored. A phone over its send window
// fails with a rate-limit error.
func (s *Service) RequestCode(ctx context.Context, rawPhone string) error {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return err
	}
	if err := s.guard.Admit(ctx, "send:"+phone, s.cfg.SendMax, s.cfg.SendWindow); err != nil {
		return err
	}
	code, err := security.GenerateCode()
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, codeKeyPrefix+phone, security.HashCode(code), s.cfg.CodeTTL); err != nil {
		return err
	}
	return s.sender.Send(ctx, phone, code)
}

// VerifyCode redeems a challenge. Success deletes the challenge (codes are
// single use) and returns the E.164 phone number as the verified external
// identity. A missing, expired, or mismatched code fails with
// auth.ErrInvalidCredential.
func (s *Service) VerifyCode(ctx context.Context, rawPhone, code string) (string, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return "", err
	}
	if err := s.guard.Admit(ctx, "check:"+phone, s.cfg.CheckMax, s.cfg.CheckWindow); err != nil {
		return "", err
	}

	storedHash, err := s.store.Get(ctx, codeKeyPrefix+phone)
	if errors.Is(err, faststore.ErrNotFound) {
		return "", auth.ErrInvalidCredential
	}
	if err != nil {
		return "", err
	}
	if !security.CodeEqual(code, storedHash) {
		return "", auth.ErrInvalidCredential
	}

	if err := s.store.Delete(ctx, codeKeyPrefix+phone); err != nil {
		// If the delete fails the code would stay redeemable within its TTL,
		// which breaks single use. Refuse the redemption instead.
		return "", err
	}
	return phone, nil
}
