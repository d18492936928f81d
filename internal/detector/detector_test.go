package detector

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"kestrel/internal/blocklist"
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
		&domain.RequestLog{},
		&domain.BlockedIP{},
		&domain.SuspiciousIP{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	database.DB = db
	t.Cleanup(func() {
		database.DB = nil
	})

	return db
}

func seedRequests(t *testing.T, ip string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		record := domain.RequestLog{IP: ip, Path: "/", Timestamp: at}
		if err := database.InsertRequestLog(context.Background(), &record); err != nil {
			t.Fatalf("seed request: %v", err)
		}
	}
}

func TestRunFlagsHighFrequencyAndUpdatesOnRerun(t *testing.T) {
	db := setupTestDB(t)

	windowEnd := time.Now()
	inWindow := windowEnd.Add(-30 * time.Minute)
	seedRequests(t, "203.0.113.7", 150, inWindow)

	d := New(Settings{Window: time.Hour, HighFrequencyThreshold: 100, NotFoundThreshold: 20})

	report, err := d.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Flagged) != 1 || report.Flagged[0] != "203.0.113.7" {
		t.Fatalf("flagged = %v, want [203.0.113.7]", report.Flagged)
	}

	var entry domain.SuspiciousIP
	if err := db.First(&entry, "ip = ?", "203.0.113.7").Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.RequestCount != 150 {
		t.Fatalf("request count = %d, want 150", entry.RequestCount)
	}
	if !strings.Contains(entry.Reason, "150 requests") {
		t.Fatalf("reason = %q", entry.Reason)
	}
	firstDetected := entry.FirstDetected

	// A later window with less traffic replaces the count, it does not add.
	secondEnd := windowEnd.Add(time.Hour)
	seedRequests(t, "203.0.113.7", 60, secondEnd.Add(-30*time.Minute))

	lowered := New(Settings{Window: time.Hour, HighFrequencyThreshold: 50, NotFoundThreshold: 20})
	if _, err := lowered.Run(context.Background(), secondEnd); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if err := db.First(&entry, "ip = ?", "203.0.113.7").Error; err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if entry.RequestCount != 60 {
		t.Fatalf("request count = %d, want 60", entry.RequestCount)
	}
	if !entry.FirstDetected.Equal(firstDetected) {
		t.Fatal("first detected must not change on re-detection")
	}

	var count int64
	if err := db.Model(&domain.SuspiciousIP{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one registry entry, got %d", count)
	}
}

func TestRunIsIdempotentForSameWindow(t *testing.T) {
	db := setupTestDB(t)

	windowEnd := time.Now()
	seedRequests(t, "203.0.113.7", 120, windowEnd.Add(-10*time.Minute))

	d := New(Settings{Window: time.Hour, HighFrequencyThreshold: 100, NotFoundThreshold: 20})
	if _, err := d.Run(context.Background(), windowEnd); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := d.Run(context.Background(), windowEnd); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var entries []domain.SuspiciousIP
	if err := db.Find(&entries).Error; err != nil {
		t.Fatalf("load entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].RequestCount != 120 {
		t.Fatalf("request count = %d, want 120", entries[0].RequestCount)
	}
}

func TestRunFlagsSingleSensitivePathHit(t *testing.T) {
	db := setupTestDB(t)

	windowEnd := time.Now()
	record := domain.RequestLog{IP: "198.51.100.3", Path: "/admin/login", Timestamp: windowEnd.Add(-5 * time.Minute)}
	if err := database.InsertRequestLog(context.Background(), &record); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	d := New(Settings{
		Window:                 time.Hour,
		HighFrequencyThreshold: 100,
		SensitivePaths:         []string{"/admin", "/login"},
		NotFoundThreshold:      20,
	})

	report, err := d.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Flagged) != 1 || report.Flagged[0] != "198.51.100.3" {
		t.Fatalf("flagged = %v, want [198.51.100.3]", report.Flagged)
	}

	var entry domain.SuspiciousIP
	if err := db.First(&entry, "ip = ?", "198.51.100.3").Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if !strings.HasPrefix(entry.Reason, "Accessed sensitive paths:") {
		t.Fatalf("reason = %q", entry.Reason)
	}
	if len(entry.FlaggedPaths) != 1 || entry.FlaggedPaths[0] != "/admin/login" {
		t.Fatalf("flagged paths = %v", entry.FlaggedPaths)
	}
	// A single matching request is one piece of evidence.
	if entry.RequestCount != 1 {
		t.Fatalf("request count = %d, want 1", entry.RequestCount)
	}
}

func TestRunSkipsScanningWithoutStatusData(t *testing.T) {
	setupTestDB(t)

	windowEnd := time.Now()
	seedRequests(t, "203.0.113.7", 5, windowEnd.Add(-10*time.Minute))

	d := New(Settings{Window: time.Hour, HighFrequencyThreshold: 100, NotFoundThreshold: 2})

	report, err := d.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.ScanningSkipped {
		t.Fatal("scanning must be skipped when the window holds no status data")
	}
	if len(report.Flagged) != 0 {
		t.Fatalf("status-less traffic under the frequency threshold must not be flagged: %v", report.Flagged)
	}
}

func TestRunFlagsScanningBehavior(t *testing.T) {
	db := setupTestDB(t)

	windowEnd := time.Now()
	at := windowEnd.Add(-10 * time.Minute)
	for i := 0; i < 5; i++ {
		record := domain.RequestLog{IP: "203.0.113.8", Path: fmt.Sprintf("/probe-%d", i), Status: 404, Timestamp: at}
		if err := database.InsertRequestLog(context.Background(), &record); err != nil {
			t.Fatalf("seed request: %v", err)
		}
	}

	d := New(Settings{Window: time.Hour, HighFrequencyThreshold: 100, NotFoundThreshold: 3})

	report, err := d.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.ScanningSkipped {
		t.Fatal("scanning must run when status data exists")
	}
	if len(report.Flagged) != 1 {
		t.Fatalf("flagged = %v", report.Flagged)
	}

	var entry domain.SuspiciousIP
	if err := db.First(&entry, "ip = ?", "203.0.113.8").Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.Reason != "Scanning behavior: 5 not-found responses within the analysis window" {
		t.Fatalf("reason = %q", entry.Reason)
	}
}

func TestRunKeepsMostSevereReason(t *testing.T) {
	db := setupTestDB(t)

	windowEnd := time.Now()
	at := windowEnd.Add(-10 * time.Minute)
	// 120 requests total, 3 of them to a sensitive path.
	seedRequests(t, "203.0.113.9", 117, at)
	for i := 0; i < 3; i++ {
		record := domain.RequestLog{IP: "203.0.113.9", Path: "/admin", Timestamp: at}
		if err := database.InsertRequestLog(context.Background(), &record); err != nil {
			t.Fatalf("seed request: %v", err)
		}
	}

	d := New(Settings{
		Window:                 time.Hour,
		HighFrequencyThreshold: 100,
		SensitivePaths:         []string{"/admin"},
		NotFoundThreshold:      20,
	})

	if _, err := d.Run(context.Background(), windowEnd); err != nil {
		t.Fatalf("run: %v", err)
	}

	var entry domain.SuspiciousIP
	if err := db.First(&entry, "ip = ?", "203.0.113.9").Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if !strings.HasPrefix(entry.Reason, "High request frequency:") {
		t.Fatalf("higher-count reason must win, got %q", entry.Reason)
	}
	if entry.RequestCount != 120 {
		t.Fatalf("request count = %d, want 120", entry.RequestCount)
	}
	// Sensitive-path evidence still contributes flagged paths.
	if len(entry.FlaggedPaths) != 1 || entry.FlaggedPaths[0] != "/admin" {
		t.Fatalf("flagged paths = %v", entry.FlaggedPaths)
	}
}

func TestRunAutoBlockPromotion(t *testing.T) {
	db := setupTestDB(t)

	windowEnd := time.Now()
	seedRequests(t, "198.51.100.8", 250, windowEnd.Add(-10*time.Minute))
	seedRequests(t, "198.51.100.9", 120, windowEnd.Add(-10*time.Minute))

	d := New(Settings{
		Window:                 time.Hour,
		HighFrequencyThreshold: 100,
		NotFoundThreshold:      20,
		AutoBlock:              true,
		AutoBlockThreshold:     200,
	})

	report, err := d.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Promoted) != 1 || report.Promoted[0] != "198.51.100.8" {
		t.Fatalf("promoted = %v, want [198.51.100.8]", report.Promoted)
	}
	if !blocklist.Contains("198.51.100.8") {
		t.Fatal("promoted address must be enforced by the gate")
	}
	if blocklist.Contains("198.51.100.9") {
		t.Fatal("below-threshold address must not be blocked")
	}

	var blocked domain.BlockedIP
	if err := db.First(&blocked, "ip = ?", "198.51.100.8").Error; err != nil {
		t.Fatalf("load block entry: %v", err)
	}
	if !strings.HasPrefix(blocked.Reason, "Blocked from suspicious IP list:") {
		t.Fatalf("reason = %q", blocked.Reason)
	}
}
