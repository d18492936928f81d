package database

import (
	"context"
	"testing"
)

func TestInsertBlockedIPIdempotent(t *testing.T) {
	setupTestDB(t)

	ctx := context.Background()

	created, err := InsertBlockedIP(ctx, "203.0.113.9", "manual block")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !created {
		t.Fatal("first insert should create a row")
	}

	created, err = InsertBlockedIP(ctx, "203.0.113.9", "a different reason")
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatal("duplicate insert must be a no-op")
	}

	entries, err := ListBlockedEntries(ctx)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Reason != "manual block" {
		t.Fatalf("first writer's reason must stick, got %q", entries[0].Reason)
	}
}

func TestDeleteBlockedIP(t *testing.T) {
	setupTestDB(t)

	ctx := context.Background()

	if _, err := InsertBlockedIP(ctx, "198.51.100.4", "x"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := DeleteBlockedIP(ctx, "198.51.100.4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Absent address is a no-op, not an error.
	if err := DeleteBlockedIP(ctx, "198.51.100.4"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	ips, err := ListBlockedIPs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ips) != 0 {
		t.Fatalf("expected empty block list, got %v", ips)
	}
}
