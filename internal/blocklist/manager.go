package blocklist

import (
	"context"
	"errors"
	"net/netip"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"kestrel/internal/database"
)

// ErrInvalidAddress is returned when an operator submits something that does
// not parse as an IPv4/IPv6 address.
var ErrInvalidAddress = errors.New("blocklist: invalid address")

var (
	cache      atomicMap
	reloadOnce singleflight.Group
)

type atomicMap struct {
	val atomic.Value
}

func (a *atomicMap) Load() map[string]struct{} {
	raw, ok := a.val.Load().(map[string]struct{})
	if !ok || raw == nil {
		empty := make(map[string]struct{})
		a.val.Store(empty)
		return empty
	}
	return raw
}

func (a *atomicMap) Store(m map[string]struct{}) {
	a.val.Store(m)
}

func init() {
	cache.Store(make(map[string]struct{}))
}

// Initialize hydrates the in-memory block set from the database.
func Initialize(ctx context.Context) error {
	return LoadCache(ctx)
}

// LoadCache rebuilds the snapshot the request gate reads. Readers keep the
// old snapshot until the swap, so Contains never blocks on a writer.
func LoadCache(ctx context.Context) error {
	ips, err := database.ListBlockedIPs(ctx)
	if err != nil {
		return err
	}
	cache.Store(toSet(ips))
	return nil
}

// Reload collapses concurrent refresh requests into a single cache rebuild.
func Reload(ctx context.Context) error {
	_, err, _ := reloadOnce.Do("reload", func() (interface{}, error) {
		return nil, LoadCache(ctx)
	})
	return err
}

func toSet(ips []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if normalized := Normalize(ip); normalized != "" {
			m[normalized] = struct{}{}
		}
	}
	return m
}

// Contains checks the in-memory snapshot for the given address. This is the
// request hot path: one parse and one map lookup, no storage access.
func Contains(ip string) bool {
	normalized := Normalize(ip)
	if normalized == "" {
		return false
	}
	_, found := cache.Load()[normalized]
	return found
}

// Add blocks an address. Blocking an already-blocked address is a no-op;
// returns whether a new entry was created.
func Add(ctx context.Context, ip, reason string) (bool, error) {
	normalized := Normalize(ip)
	if normalized == "" {
		return false, ErrInvalidAddress
	}

	created, err := database.InsertBlockedIP(ctx, normalized, reason)
	if err != nil {
		return false, err
	}
	if created {
		if err := Reload(ctx); err != nil {
			return true, err
		}
	}
	return created, nil
}

// Remove unblocks an address; removing an absent address is a no-op.
func Remove(ctx context.Context, ip string) error {
	normalized := Normalize(ip)
	if normalized == "" {
		return ErrInvalidAddress
	}

	if err := database.DeleteBlockedIP(ctx, normalized); err != nil {
		return err
	}
	return Reload(ctx)
}

// Promote moves a suspicious-registry entry onto the block list, citing the
// registry's reason. Safe to call concurrently and repeatedly for the same
// address; only the first call creates an entry.
func Promote(ctx context.Context, ip string) (bool, error) {
	normalized := Normalize(ip)
	if normalized == "" {
		return false, ErrInvalidAddress
	}

	created, err := database.PromoteSuspiciousToBlock(ctx, normalized)
	if err != nil {
		return false, err
	}
	if created {
		if err := Reload(ctx); err != nil {
			return true, err
		}
	}
	return created, nil
}

// Normalize parses raw into its canonical address string, "" when invalid.
// IPv4-mapped IPv6 addresses collapse to their IPv4 form so both spellings
// hit the same entry.
func Normalize(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
