package faststore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: want ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v" {
		t.Errorf("Get = %q, want %q", got, "v")
	}

	if err := s.Delete(ctx, "k", "never-existed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	s.SetNow(func() time.Time { return now })

	if err := s.Set(ctx, "k", "v", 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	now = now.Add(4 * time.Minute)
	s.SetNow(func() time.Time { return now })
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	now = now.Add(2 * time.Minute)
	s.SetNow(func() time.Time { return now })
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry: want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_IncrementWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	s.SetNow(func() time.Time { return now })

	for want := int64(1); want <= 3; want++ {
		n, err := s.Increment(ctx, "c", time.Hour)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != want {
			t.Errorf("Increment = %d, want %d", n, want)
		}
	}

	// The window is fixed from the first increment; once it lapses the
	// counter starts over.
	now = now.Add(61 * time.Minute)
	s.SetNow(func() time.Time { return now })
	n, err := s.Increment(ctx, "c", time.Hour)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n != 1 {
		t.Errorf("Increment after window lapse = %d, want 1", n)
	}
}
