package catalog

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"

	"github.com/flowmetrics/qpipe/database"
	"github.com/flowmetrics/qpipe/encryption"
	"github.com/flowmetrics/qpipe/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := database.Config{DSN: ":memory:"}
	cfg.ApplyDefaults()
	db, err := database.New(cfg, logger.NewDefault("test"), sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	cipher, err := encryption.NewChaCha20("test-catalog-key")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	s := NewStore(db, cipher)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestPutAndGetRoundTripsCredential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Put(ctx, Entry{
		Name:          "rest-primary",
		MetricPattern: "cpu.*",
		Kind:          "rest",
		Endpoint:      "https://metrics.internal/api",
		Enabled:       true,
	}, "super-secret-token")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	resolved, err := s.Get(ctx, "rest-primary")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resolved.Credential != "super-secret-token" {
		t.Fatalf("expected decrypted credential, got %q", resolved.Credential)
	}
	if resolved.Entry.SealedCredential == "super-secret-token" {
		t.Fatal("credential must be sealed at rest, not stored in the clear")
	}
}

func TestListOnlyReturnsEnabledEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, Entry{Name: "a", Enabled: true}, ""); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := s.Put(ctx, Entry{Name: "b", Enabled: false}, ""); err != nil {
		t.Fatalf("put b: %v", err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a" {
		t.Fatalf("expected only entry a, got %+v", entries)
	}
}

func TestPutWithoutCipherRejectsCredential(t *testing.T) {
	cfg := database.Config{DSN: ":memory:"}
	cfg.ApplyDefaults()
	db, err := database.New(cfg, logger.NewDefault("test"), sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	s := NewStore(db, nil)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	err = s.Put(context.Background(), Entry{Name: "x"}, "secret")
	if err == nil {
		t.Fatal("expected an error sealing a credential with no cipher configured")
	}
}
