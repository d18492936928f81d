package config

import (
	"testing"
	"time"
)

func TestCalculateMillisecondsOfTimer(t *testing.T) {
	timer := Timer{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	want := uint64((24*60*60 + 2*60*60 + 3*60 + 4) * 1000)

	if got := CalculateMillisecondsOfTimer(timer); got != want {
		t.Fatalf("CalculateMillisecondsOfTimer returned %d, want %d", got, want)
	}
}

func TestCalculateBetweenTime(t *testing.T) {
	t.Run("enforces minimum interval", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{}); got != time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1s", got)
		}
	})

	t.Run("returns configured duration", func(t *testing.T) {
		if got := CalculateBetweenTime(Timer{Minutes: 1, Seconds: 30}); got != 90*time.Second {
			t.Fatalf("CalculateBetweenTime returned %s, want 1m30s", got)
		}
	})
}

func TestSetIntervals(t *testing.T) {
	origCfg := GetConfig()
	origInterval := GetDetectionInterval()
	origListeners := detectionIntervalListeners

	t.Cleanup(func() {
		configValue.Store(origCfg)
		detectionInterval.Store(origInterval)
		detectionIntervalListeners = origListeners
	})

	testCfg := Config{}
	testCfg.Detector.DetectionTimer = Timer{Minutes: 15}

	configValue.Store(testCfg)
	detectionIntervalListeners = nil

	SetIntervals()

	if got := GetDetectionInterval(); got != 15*time.Minute {
		t.Fatalf("GetDetectionInterval returned %s, want 15m", got)
	}
}

func TestDetectionIntervalUpdates(t *testing.T) {
	origInterval := GetDetectionInterval()
	origListeners := detectionIntervalListeners

	t.Cleanup(func() {
		detectionInterval.Store(origInterval)
		detectionIntervalListeners = origListeners
	})

	detectionInterval.Store(time.Second)
	detectionIntervalListeners = nil

	ch := DetectionIntervalUpdates()
	first := <-ch
	if first != time.Second {
		t.Fatalf("initial update = %s, want 1s", first)
	}

	setDetectionInterval(5 * time.Second)

	select {
	case next := <-ch:
		if next != 5*time.Second {
			t.Fatalf("next update = %s, want 5s", next)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for interval update")
	}

	// Verify no duplicate notification when same interval is set.
	setDetectionInterval(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("unexpected update when interval unchanged")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWindowAndTTLDefaults(t *testing.T) {
	origCfg := GetConfig()
	t.Cleanup(func() {
		configValue.Store(origCfg)
	})

	configValue.Store(Config{})

	if got := GetDetectionWindow(); got != time.Hour {
		t.Fatalf("GetDetectionWindow returned %s, want 1h", got)
	}
	if got := GetMemoryCacheTTL(); got != 24*time.Hour {
		t.Fatalf("GetMemoryCacheTTL returned %s, want 24h", got)
	}
	if got := GetDurableCacheTTL(); got != 24*time.Hour {
		t.Fatalf("GetDurableCacheTTL returned %s, want 24h", got)
	}
	if got := GetLookupTimeout(); got != 3*time.Second {
		t.Fatalf("GetLookupTimeout returned %s, want 3s", got)
	}
	if got := GetRateLimitWindow(); got != 5*time.Minute {
		t.Fatalf("GetRateLimitWindow returned %s, want 5m", got)
	}

	cfg := Config{}
	cfg.Detector.Window = Timer{Minutes: 30}
	cfg.Geolocation.MemoryCacheTTL = Timer{Hours: 6}
	cfg.Geolocation.DurableCacheTTL = Timer{Days: 2}
	cfg.Geolocation.LookupTimeoutMs = 1500
	cfg.RateLimit.Window = Timer{Minutes: 1}
	configValue.Store(cfg)

	if got := GetDetectionWindow(); got != 30*time.Minute {
		t.Fatalf("GetDetectionWindow returned %s, want 30m", got)
	}
	if got := GetMemoryCacheTTL(); got != 6*time.Hour {
		t.Fatalf("GetMemoryCacheTTL returned %s, want 6h", got)
	}
	if got := GetDurableCacheTTL(); got != 48*time.Hour {
		t.Fatalf("GetDurableCacheTTL returned %s, want 48h", got)
	}
	if got := GetLookupTimeout(); got != 1500*time.Millisecond {
		t.Fatalf("GetLookupTimeout returned %s, want 1.5s", got)
	}
	if got := GetRateLimitWindow(); got != time.Minute {
		t.Fatalf("GetRateLimitWindow returned %s, want 1m", got)
	}
}
