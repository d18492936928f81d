package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultDetectionInterval = time.Hour
	defaultDetectionWindow   = time.Hour
	defaultCacheTTL          = 24 * time.Hour
	defaultLookupTimeout     = 3 * time.Second
	defaultRateLimitWindow   = 5 * time.Minute
)

var (
	detectionInterval          atomic.Value
	detectionIntervalListeners []chan time.Duration
	listenersMu                sync.Mutex
)

func init() {
	detectionInterval.Store(defaultDetectionInterval)
}

// SetIntervals recomputes the derived durations after a configuration change.
func SetIntervals() {
	cfg := GetConfig()
	setDetectionInterval(CalculateBetweenTime(cfg.Detector.DetectionTimer))
}

// CalculateBetweenTime converts a Timer into a duration with a 1s floor.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfTimer(timer)

	// Enforce minimum interval (e.g., 1 second)
	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfTimer(timer Timer) uint64 {
	// Calculate total duration in milliseconds
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func GetDetectionInterval() time.Duration {
	return detectionInterval.Load().(time.Duration)
}

// DetectionIntervalUpdates returns a channel primed with the current interval
// that receives every subsequent change.
func DetectionIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	listenersMu.Lock()
	detectionIntervalListeners = append(detectionIntervalListeners, ch)
	listenersMu.Unlock()

	ch <- GetDetectionInterval()
	return ch
}

func setDetectionInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultDetectionInterval
	}

	current := GetDetectionInterval()
	if current == interval {
		return
	}

	detectionInterval.Store(interval)

	listenersMu.Lock()
	defer listenersMu.Unlock()
	for _, ch := range detectionIntervalListeners {
		select {
		case ch <- interval:
		default:
		}
	}
}

// GetDetectionWindow returns the trailing range a detector run analyses.
func GetDetectionWindow() time.Duration {
	window := time.Duration(CalculateMillisecondsOfTimer(GetConfig().Detector.Window)) * time.Millisecond
	if window <= 0 {
		return defaultDetectionWindow
	}
	return window
}

// GetRateLimitWindow returns the span the per-address request budget covers.
func GetRateLimitWindow() time.Duration {
	window := time.Duration(CalculateMillisecondsOfTimer(GetConfig().RateLimit.Window)) * time.Millisecond
	if window <= 0 {
		return defaultRateLimitWindow
	}
	return window
}

func GetMemoryCacheTTL() time.Duration {
	ttl := time.Duration(CalculateMillisecondsOfTimer(GetConfig().Geolocation.MemoryCacheTTL)) * time.Millisecond
	if ttl <= 0 {
		return defaultCacheTTL
	}
	return ttl
}

func GetDurableCacheTTL() time.Duration {
	ttl := time.Duration(CalculateMillisecondsOfTimer(GetConfig().Geolocation.DurableCacheTTL)) * time.Millisecond
	if ttl <= 0 {
		return defaultCacheTTL
	}
	return ttl
}

func GetLookupTimeout() time.Duration {
	timeout := time.Duration(GetConfig().Geolocation.LookupTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		return defaultLookupTimeout
	}
	return timeout
}
