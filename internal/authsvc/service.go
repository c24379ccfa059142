// Package authsvc is the authentication facade: phone and federated login,
// token refresh, logout, and the access-token gate used by the rest of the
// system. It composes verification, identity resolution, and session
// management and is the only layer the transport talks to.
package authsvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"marketplace-auth/internal/account/domain"
	"marketplace-auth/internal/account/repository"
	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/events"
	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/security"
	sessionsvc "marketplace-auth/internal/session/service"
	"marketplace-auth/internal/verification"
)

// AccountSummary is the caller-facing slice of an account.
type AccountSummary struct {
	ID        string   `json:"id"`
	Phone     string   `json:"phone,omitempty"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Badges    []string `json:"badges"`
}

// AuthResult is returned by every login path. IsNewAccount distinguishes a
// first-time signup from a returning login.
type AuthResult struct {
	Account      AccountSummary        `json:"account"`
	IsNewAccount bool                  `json:"is_new_account"`
	Tokens       *sessionsvc.TokenPair `json:"tokens"`
}

// Identity is the authenticated principal produced by Authenticate.
type Identity struct {
	AccountID string
	SessionID string
}

// Service is the authentication facade. Safe for concurrent use.
type Service struct {
	verification *verification.Service
	resolver     *identity.Resolver
	accounts     repository.Repository
	sessions     *sessionsvc.Manager
	tokens       *security.TokenProvider
	emitter      events.Emitter
	log          *slog.Logger
	tracer       trace.Tracer
}

// NewService wires the facade. emitter may be nil to disable events.
func NewService(
	v *verification.Service,
	resolver *identity.Resolver,
	accounts repository.Repository,
	sessions *sessionsvc.Manager,
	tokens *security.TokenProvider,
	emitter events.Emitter,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		verification: v,
		resolver:     resolver,
		accounts:     accounts,
		sessions:     sessions,
		tokens:       tokens,
		emitter:      emitter,
		log:          log,
		tracer:       otel.Tracer("marketplace-auth/authsvc"),
	}
}

// SendVerificationCode issues a phone verification challenge.
func (s *Service) SendVerificationCode(ctx context.Context, phone string) error {
	ctx, span := s.tracer.Start(ctx, "auth.SendVerificationCode")
	defer span.End()
	err := s.verification.RequestCode(ctx, phone)
	return s.finishSpan(span, err)
}

// VerifyPhoneCode redeems a challenge and logs the caller in on the phone
// path, creating the account on first verification.
func (s *Service) VerifyPhoneCode(ctx context.Context, phone, code, deviceType, ip string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.VerifyPhoneCode")
	defer span.End()

	normalized, err := s.verification.VerifyCode(ctx, phone, code)
	if err != nil {
		return nil, s.finishSpan(span, err)
	}
	ident := auth.ExternalIdentity{Kind: auth.KindPhone, Subject: normalized}
	res, err := s.login(ctx, span, ident, deviceType, ip)
	return res, s.finishSpan(span, err)
}

// AuthenticateWithGoogle logs the caller in with a Google ID token.
func (s *Service) AuthenticateWithGoogle(ctx context.Context, idToken, deviceType, ip string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.AuthenticateWithGoogle")
	defer span.End()

	ident, err := identity.DecodeGoogleToken(idToken)
	if err != nil {
		return nil, s.finishSpan(span, err)
	}
	res, err := s.login(ctx, span, ident, deviceType, ip)
	return res, s.finishSpan(span, err)
}

// AuthenticateWithApple logs the caller in with an Apple identity token.
func (s *Service) AuthenticateWithApple(ctx context.Context, identityToken, deviceType, ip string) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.AuthenticateWithApple")
	defer span.End()

	ident, err := identity.DecodeAppleToken(identityToken)
	if err != nil {
		return nil, s.finishSpan(span, err)
	}
	res, err := s.login(ctx, span, ident, deviceType, ip)
	return res, s.finishSpan(span, err)
}

// login turns a verified external identity into an account and a session.
func (s *Service) login(ctx context.Context, span trace.Span, ident auth.ExternalIdentity, deviceType, ip string) (*AuthResult, error) {
	acct, isNew, err := s.resolver.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("auth.method", string(ident.Kind)),
		attribute.Bool("auth.new_account", isNew),
	)

	pair, err := s.sessions.Create(ctx, acct.ID, deviceType, ip)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.TouchLastActive(ctx, acct.ID, time.Now().UTC()); err != nil {
		s.log.Warn("last-active touch failed", "account_id", acct.ID, "err", err)
	}

	eventType := events.TypeLogin
	if isNew {
		eventType = events.TypeSignup
	}
	events.EmitAsync(s.emitter, events.Event{
		Type:      eventType,
		AccountID: acct.ID,
		Method:    string(ident.Kind),
		IP:        ip,
		At:        time.Now().UTC(),
	})

	return &AuthResult{
		Account:      summarize(acct),
		IsNewAccount: isNew,
		Tokens:       pair,
	}, nil
}

// Refresh rotates a refresh token into a fresh token pair. A reuse event
// surfaces as auth.ErrSessionCompromised after the account's sessions have
// been revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip string) (*sessionsvc.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Refresh")
	defer span.End()

	pair, err := s.sessions.Rotate(ctx, refreshToken, ip)
	if errors.Is(err, auth.ErrSessionCompromised) {
		// Rotate already revoked the account; the account id is still
		// recoverable from the token for the event stream.
		accountID, sessionID, verr := s.tokens.VerifyRefresh(refreshToken)
		if verr == nil {
			events.EmitAsync(s.emitter, events.Event{
				Type:      events.TypeReuseDetected,
				AccountID: accountID,
				SessionID: sessionID,
				IP:        ip,
				At:        time.Now().UTC(),
			})
		}
		return nil, s.finishSpan(span, err)
	}
	if err != nil {
		return nil, s.finishSpan(span, err)
	}

	events.EmitAsync(s.emitter, events.Event{
		Type: events.TypeRefresh,
		IP:   ip,
		At:   time.Now().UTC(),
	})
	return pair, nil
}

// Logout revokes the given session. Idempotent.
func (s *Service) Logout(ctx context.Context, accountID, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer span.End()

	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return s.finishSpan(span, err)
	}
	events.EmitAsync(s.emitter, events.Event{
		Type:      events.TypeLogout,
		AccountID: accountID,
		SessionID: sessionID,
		At:        time.Now().UTC(),
	})
	return nil
}

// Authenticate is the gate in front of protected operations: it verifies the
// access token signature and claims, then checks that the backing session
// still exists. A token for a revoked session fails even before the token's
// own expiry.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	accountID, sessionID, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, s.finishSpan(span, auth.ErrUnauthorized)
	}
	ok, err := s.sessions.IsValid(ctx, sessionID)
	if err != nil {
		return nil, s.finishSpan(span, err)
	}
	if !ok {
		return nil, s.finishSpan(span, auth.ErrUnauthorized)
	}
	return &Identity{AccountID: accountID, SessionID: sessionID}, nil
}

// Account returns the account summary for an authenticated principal.
func (s *Service) Account(ctx context.Context, accountID string) (*AccountSummary, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, auth.ErrUnauthorized
	}
	summary := summarize(acct)
	return &summary, nil
}

func (s *Service) finishSpan(span trace.Span, err error) error {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func summarize(a *domain.Account) AccountSummary {
	badges := a.Badges
	if badges == nil {
		badges = []string{}
	}
	return AccountSummary{
		ID:        a.ID,
		Phone:     a.Phone,
		Email:     a.Email,
		Name:      a.Name,
		AvatarURL: a.AvatarURL,
		Badges:    badges,
	}
}
