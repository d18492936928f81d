package geo

import (
	"context"
	"time"

	"kestrel/internal/database"

	"github.com/charmbracelet/log"
)

// UnknownLocation is cached for addresses the lookup could answer but could
// not place, so they are not re-queried every request.
const UnknownLocation = "unknown"

// ResolverOptions carries the tunables explicitly so tests can vary TTLs and
// timeouts without touching global configuration.
type ResolverOptions struct {
	MemoryTTL     time.Duration
	DurableTTL    time.Duration
	LookupTimeout time.Duration
}

// Resolver answers location questions through three tiers: an in-process TTL
// cache, the durable cache table, and finally the configured lookup. It never
// fails from the caller's perspective; every fault degrades to an absent
// location. Concurrent resolutions of the same uncached address may both hit
// the lookup; the duplicate write is harmless and cheaper than coordinating.
type Resolver struct {
	lookup Lookup
	memory memoryCache
	opts   ResolverOptions

	// now is swapped in tests to step through TTL expiry.
	now func() time.Time
}

func NewResolver(lookup Lookup, opts ResolverOptions) *Resolver {
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = 24 * time.Hour
	}
	if opts.DurableTTL <= 0 {
		opts.DurableTTL = 24 * time.Hour
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 3 * time.Second
	}

	return &Resolver{
		lookup: lookup,
		opts:   opts,
		now:    time.Now,
	}
}

// Resolve returns the address's location, or a zero Location when the address
// is private, the lookup fails, or no lookup is configured.
func (r *Resolver) Resolve(ctx context.Context, ip string) Location {
	if IsPrivateAddress(ip) {
		return Location{}
	}

	now := r.now()

	if location, ok := r.memory.get(ip, now); ok {
		return location
	}

	entry, err := database.GetGeolocation(ctx, ip, now, r.opts.DurableTTL)
	if err != nil {
		log.Warn("Geolocation durable cache read failed", "ip", ip, "error", err)
	} else if entry != nil {
		location := Location{Country: entry.Country, City: entry.City}
		r.memory.set(ip, location, now, r.opts.MemoryTTL)
		return location
	}

	if r.lookup == nil {
		return Location{}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.opts.LookupTimeout)
	defer cancel()

	location, err := r.lookup.Lookup(lookupCtx, ip)
	if err != nil {
		// Enrichment only: the caller proceeds without a location.
		log.Warn("Geolocation lookup failed", "ip", ip, "error", err)
		return Location{}
	}

	if location.Country == "" {
		location.Country = UnknownLocation
	}
	if location.City == "" {
		location.City = UnknownLocation
	}

	r.memory.set(ip, location, now, r.opts.MemoryTTL)
	if err := database.PutGeolocation(ctx, ip, location.Country, location.City, now); err != nil {
		log.Warn("Geolocation durable cache write failed", "ip", ip, "error", err)
	}

	return location
}
