package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-auth/internal/account/domain"
	"marketplace-auth/internal/auth"
)

type memAccountRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{m: make(map[string]*domain.Account)}
}

func (r *memAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a2 := *a
		return &a2, nil
	}
	return nil, nil
}

func (r *memAccountRepo) GetByExternalID(ctx context.Context, kind auth.CredentialKind, externalID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if subjectOf(a, kind) == externalID {
			a2 := *a
			return &a2, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if a.Email == email && email != "" {
			a2 := *a
			return &a2, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a2 := *a
	r.m[a.ID] = &a2
	return nil
}

func (r *memAccountRepo) Update(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a2 := *a
	r.m[a.ID] = &a2
	return nil
}

func (r *memAccountRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.LastActiveAt = at
	}
	return nil
}

func TestResolver_CreatesAccountOnFirstVerification(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo()
	r := NewResolver(repo, nil)

	acct, isNew, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindPhone, Subject: "+14155551234"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !isNew {
		t.Error("isNew = false for first verification")
	}
	if acct.Phone != "+14155551234" {
		t.Errorf("Phone = %q", acct.Phone)
	}
	if !acct.HasBadge("PHONE") {
		t.Error("missing PHONE badge")
	}
}

func TestResolver_ReturningAccount(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo()
	r := NewResolver(repo, nil)

	first, _, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindGoogle, Subject: "g-1", Email: "u@example.com"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, isNew, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindGoogle, Subject: "g-1"})
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	if isNew {
		t.Error("isNew = true for returning account")
	}
	if second.ID != first.ID {
		t.Errorf("returning resolution created a different account: %q vs %q", second.ID, first.ID)
	}
}

func TestResolver_LinksByEmailAcrossProviders(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo()
	r := NewResolver(repo, nil)

	google, _, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindGoogle, Subject: "g-1", Email: "same@example.com", Name: "U"})
	if err != nil {
		t.Fatalf("Resolve google: %v", err)
	}
	apple, isNew, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindApple, Subject: "a-1", Email: "same@example.com"})
	if err != nil {
		t.Fatalf("Resolve apple: %v", err)
	}
	if isNew {
		t.Error("isNew = true, want linking into the existing account")
	}
	if apple.ID != google.ID {
		t.Fatalf("second provider created a duplicate account: %q vs %q", apple.ID, google.ID)
	}
	if apple.GoogleID != "g-1" || apple.AppleID != "a-1" {
		t.Errorf("subjects not both linked: google=%q apple=%q", apple.GoogleID, apple.AppleID)
	}
	if !apple.HasBadge("GOOGLE") || !apple.HasBadge("APPLE") {
		t.Errorf("badges not accumulated: %v", apple.Badges)
	}
}

func TestResolver_LinkConflict(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo()
	r := NewResolver(repo, nil)

	if _, _, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindGoogle, Subject: "g-1", Email: "same@example.com"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Same email, different Google subject: linking would displace g-1.
	_, _, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindGoogle, Subject: "g-2", Email: "same@example.com"})
	if !errors.Is(err, auth.ErrAccountConflict) {
		t.Errorf("want ErrAccountConflict, got %v", err)
	}
}

func TestResolver_NoEmailHintCreatesSeparateAccounts(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo()
	r := NewResolver(repo, nil)

	a, _, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindGoogle, Subject: "g-1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, isNew, err := r.Resolve(ctx, auth.ExternalIdentity{Kind: auth.KindApple, Subject: "a-1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !isNew || a.ID == b.ID {
		t.Error("without an email hint the providers cannot be linked")
	}
}
