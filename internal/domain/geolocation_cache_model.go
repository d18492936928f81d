package domain

import "time"

// GeolocationCache is the durable geolocation tier, one row per address.
// A row older than the configured TTL is treated as absent and replaced in
// place on the next successful lookup.
type GeolocationCache struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	IP string `gorm:"size:45;uniqueIndex;not null"`

	// Country and City hold "unknown" (not "") for addresses the remote
	// lookup could not place, so they are not re-queried every request.
	Country string `gorm:"size:100;not null"`
	City    string `gorm:"size:100;not null"`

	ResolvedAt time.Time `gorm:"index;not null"`
}

// Expired reports whether the entry is older than ttl at the given instant.
func (g GeolocationCache) Expired(now time.Time, ttl time.Duration) bool {
	return now.After(g.ResolvedAt.Add(ttl))
}
