package tracking

import (
	"net/http"
	"sync"
	"time"
)

// LimiterSettings carries the rate limiter's tunables explicitly, so tests
// can vary budget and window without touching global configuration.
type LimiterSettings struct {
	// MaxRequests is the per-address budget inside one window; 0 disables
	// the limiter.
	MaxRequests int

	Window time.Duration
}

// Limiter enforces a sliding per-address request budget in memory. Each
// address tracks its recent request instants; entries older than the window
// are pruned on every touch, and idle addresses are swept once per window so
// the map does not grow with one-off visitors.
type Limiter struct {
	settings LimiterSettings

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time

	// now is swapped in tests to step through the window.
	now func() time.Time
}

func NewLimiter(settings LimiterSettings) *Limiter {
	if settings.Window <= 0 {
		settings.Window = 5 * time.Minute
	}
	return &Limiter{
		settings: settings,
		hits:     make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records one request for the address and reports whether it stays
// within the budget. Rejected requests still count toward the window, so a
// client hammering past the limit does not earn extra allowance.
func (l *Limiter) Allow(ip string) bool {
	if l.settings.MaxRequests <= 0 {
		return true
	}

	now := l.now()
	cutoff := now.Add(-l.settings.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.settings.Window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	recent := pruneBefore(l.hits[ip], cutoff)
	recent = append(recent, now)
	l.hits[ip] = recent

	return len(recent) <= l.settings.MaxRequests
}

// Middleware rejects over-budget addresses with a 429. Like the gate's 403,
// the rejection is a designed outcome and is not logged as an error.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			http.Error(w, "Rate limit exceeded. Try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) sweep(cutoff time.Time) {
	for ip, instants := range l.hits {
		recent := pruneBefore(instants, cutoff)
		if len(recent) == 0 {
			delete(l.hits, ip)
			continue
		}
		l.hits[ip] = recent
	}
}

func pruneBefore(instants []time.Time, cutoff time.Time) []time.Time {
	recent := instants[:0]
	for _, instant := range instants {
		if instant.After(cutoff) {
			recent = append(recent, instant)
		}
	}
	return recent
}
