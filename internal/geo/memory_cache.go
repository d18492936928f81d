package geo

import (
	"sync"
	"time"
)

type memoryCacheEntry struct {
	location Location
	expires  time.Time
}

// memoryCache is the fast in-process tier. Entries for distinct addresses
// never contend; an expired entry reads as a miss and is overwritten in place.
type memoryCache struct {
	entries sync.Map
}

func (c *memoryCache) get(ip string, now time.Time) (Location, bool) {
	raw, ok := c.entries.Load(ip)
	if !ok {
		return Location{}, false
	}

	entry := raw.(memoryCacheEntry)
	if now.After(entry.expires) {
		c.entries.Delete(ip)
		return Location{}, false
	}
	return entry.location, true
}

func (c *memoryCache) set(ip string, location Location, now time.Time, ttl time.Duration) {
	c.entries.Store(ip, memoryCacheEntry{
		location: location,
		expires:  now.Add(ttl),
	})
}
