package blocklist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kestrel/internal/database"
	"kestrel/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		t.Fatalf("set busy timeout: %v", err)
	}

	if err := db.AutoMigrate(
		&domain.BlockedIP{},
		&domain.SuspiciousIP{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
		cache.Store(make(map[string]struct{}))
	})

	return db
}

func TestAddContainsRemove(t *testing.T) {
	setupTestDB(t)

	ctx := context.Background()

	if Contains("203.0.113.4") {
		t.Fatal("address must not be blocked before Add")
	}

	created, err := Add(ctx, "203.0.113.4", "manual block")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !created {
		t.Fatal("first Add should create an entry")
	}
	if !Contains("203.0.113.4") {
		t.Fatal("gate must see the address right after Add")
	}

	created, err = Add(ctx, "203.0.113.4", "again")
	if err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if created {
		t.Fatal("duplicate Add must be a no-op")
	}

	if err := Remove(ctx, "203.0.113.4"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if Contains("203.0.113.4") {
		t.Fatal("gate must stop matching after Remove")
	}
	// Removing again is a no-op.
	if err := Remove(ctx, "203.0.113.4"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestAddRejectsInvalidAddress(t *testing.T) {
	setupTestDB(t)

	if _, err := Add(context.Background(), "not-an-ip", "x"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := Remove(context.Background(), "not-an-ip"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestContainsMatchesMappedIPv4(t *testing.T) {
	setupTestDB(t)

	if _, err := Add(context.Background(), "::ffff:203.0.113.4", "mapped"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !Contains("203.0.113.4") {
		t.Fatal("IPv4 spelling must match the mapped entry")
	}
	if !Contains("::ffff:203.0.113.4") {
		t.Fatal("mapped spelling must match too")
	}
}

func TestPromoteFromSuspiciousRegistry(t *testing.T) {
	setupTestDB(t)

	ctx := context.Background()

	err := database.UpsertSuspiciousIP(ctx, database.SuspiciousUpdate{
		IP:           "198.51.100.7",
		Reason:       "High request frequency: 150 requests within the analysis window",
		RequestCount: 150,
	}, time.Now())
	if err != nil {
		t.Fatalf("seed registry: %v", err)
	}

	created, err := Promote(ctx, "198.51.100.7")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if !created {
		t.Fatal("promotion should create a block entry")
	}
	if !Contains("198.51.100.7") {
		t.Fatal("gate must match after promotion")
	}

	created, err = Promote(ctx, "198.51.100.7")
	if err != nil {
		t.Fatalf("second promote: %v", err)
	}
	if created {
		t.Fatal("second promotion must be a no-op")
	}

	if _, err := Promote(ctx, "192.0.2.50"); !errors.Is(err, database.ErrSuspiciousNotFound) {
		t.Fatalf("promoting an address with no registry entry must fail, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"203.0.113.4", "203.0.113.4"},
		{"::ffff:203.0.113.4", "203.0.113.4"},
		{"2001:DB8::1", "2001:db8::1"},
		{"not-an-ip", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
