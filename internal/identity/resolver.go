package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketplace-auth/internal/account/domain"
	"marketplace-auth/internal/account/repository"
	"marketplace-auth/internal/auth"
)

// Resolver maps a verified external identity to an internal account,
// creating or linking one when necessary. The anti-duplication invariant is
// at most one account per distinct phone, email, Google subject, or Apple
// subject; unique indexes in the durable store back it, the lookups here
// provide the friendly conflict path.
type Resolver struct {
	accounts repository.Repository
	log      *slog.Logger
}

// NewResolver returns a Resolver over the account repository.
func NewResolver(accounts repository.Repository, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{accounts: accounts, log: log}
}

// Resolve returns the account owning ident, linking into an existing account
// that shares the email hint, or creating a fresh one. isNew reports whether
// an account was created by this call.
func (r *Resolver) Resolve(ctx context.Context, ident auth.ExternalIdentity) (acct *domain.Account, isNew bool, err error) {
	existing, err := r.accounts.GetByExternalID(ctx, ident.Kind, ident.Subject)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if r.fillProfile(existing, ident) {
			if err := r.accounts.Update(ctx, existing); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	if ident.Email != "" {
		byEmail, err := r.accounts.GetByEmail(ctx, ident.Email)
		if err != nil {
			return nil, false, err
		}
		if byEmail != nil {
			if err := link(byEmail, ident); err != nil {
				return nil, false, err
			}
			r.fillProfile(byEmail, ident)
			if err := r.accounts.Update(ctx, byEmail); err != nil {
				return nil, false, err
			}
			r.log.Info("linked credential path into existing account",
				"account_id", byEmail.ID, "kind", string(ident.Kind))
			return byEmail, false, nil
		}
	}

	now := time.Now().UTC()
	acct = &domain.Account{
		ID:           uuid.New().String(),
		Email:        ident.Email,
		Name:         ident.Name,
		AvatarURL:    ident.Picture,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	setSubject(acct, ident.Kind, ident.Subject)
	acct.AddBadge(ident.Kind.Badge())
	if err := r.accounts.Create(ctx, acct); err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

// link attaches ident's subject to acct, refusing when the account already
// carries a different subject for that credential kind.
func link(acct *domain.Account, ident auth.ExternalIdentity) error {
	current := subjectOf(acct, ident.Kind)
	if current != "" && current != ident.Subject {
		return auth.ErrAccountConflict
	}
	setSubject(acct, ident.Kind, ident.Subject)
	return nil
}

// fillProfile adds the badge and any profile hints the account is missing.
// Reports whether anything changed.
func (r *Resolver) fillProfile(acct *domain.Account, ident auth.ExternalIdentity) bool {
	changed := false
	if badge := ident.Kind.Badge(); badge != "" && !acct.HasBadge(badge) {
		acct.AddBadge(badge)
		changed = true
	}
	if acct.Email == "" && ident.Email != "" {
		acct.Email = ident.Email
		changed = true
	}
	if acct.Name == "" && ident.Name != "" {
		acct.Name = ident.Name
		changed = true
	}
	if acct.AvatarURL == "" && ident.Picture != "" {
		acct.AvatarURL = ident.Picture
		changed = true
	}
	return changed
}

func subjectOf(acct *domain.Account, kind auth.CredentialKind) string {
	switch kind {
	case auth.KindPhone:
		return acct.Phone
	case auth.KindGoogle:
		return acct.GoogleID
	case auth.KindApple:
		return acct.AppleID
	default:
		return ""
	}
}

func setSubject(acct *domain.Account, kind auth.CredentialKind, subject string) {
	switch kind {
	case auth.KindPhone:
		acct.Phone = subject
	case auth.KindGoogle:
		acct.GoogleID = subject
	case auth.KindApple:
		acct.AppleID = subject
	}
}
