package keys

import (
	"context"
	"strings"
	"testing"

	"github.com/finauthio/finauth/storage"
)

// 2048-bit generation dominates these tests; keep the count low.

func TestEnsureKeyPairReusesPersistedKey(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	m1, err := NewManager(store, "client-key", 2048)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	first, err := m1.EnsureKeyPair(ctx, false)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	// A second manager over the same storage must load the same key.
	m2, err := NewManager(store, "client-key", 2048)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	second, err := m2.EnsureKeyPair(ctx, false)
	if err != nil {
		t.Fatalf("ensure on fresh manager failed: %v", err)
	}

	if first.PublicPEM != second.PublicPEM {
		t.Fatal("expected persisted key to be reused across managers")
	}
	if !strings.Contains(first.PublicPEM, "BEGIN PUBLIC KEY") {
		t.Fatalf("public export is not PEM: %q", first.PublicPEM[:40])
	}
}

func TestEnsureKeyPairForceRegenerates(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	m, err := NewManager(store, "client-key", 2048)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	first, err := m.EnsureKeyPair(ctx, false)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	second, err := m.EnsureKeyPair(ctx, true)
	if err != nil {
		t.Fatalf("forced ensure failed: %v", err)
	}

	if first.PublicPEM == second.PublicPEM {
		t.Fatal("forced regeneration returned the old key")
	}
	if current := m.Current(); current != second {
		t.Fatal("cached keypair not updated after forced regeneration")
	}

	// The persisted copy must match the regenerated key.
	m2, err := NewManager(store, "client-key", 2048)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	reloaded, err := m2.EnsureKeyPair(ctx, false)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.PublicPEM != second.PublicPEM {
		t.Fatal("persisted key does not match regenerated key")
	}
}

func TestPublicPEMRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	m, err := NewManager(store, "client-key", 2048)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	pair, err := m.EnsureKeyPair(context.Background(), false)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	public, err := ParsePublicPEM(pair.PublicPEM)
	if err != nil {
		t.Fatalf("parse public PEM failed: %v", err)
	}
	if public.N.Cmp(pair.Private.PublicKey.N) != 0 {
		t.Fatal("parsed public key does not match the private key")
	}
}

func TestNewManagerRejectsWeakKeySize(t *testing.T) {
	if _, err := NewManager(storage.NewMemoryStore(), "client-key", 1024); err == nil {
		t.Fatal("expected rejection of 1024-bit key size")
	}
}
