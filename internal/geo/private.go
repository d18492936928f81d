package geo

import "net/netip"

// IsPrivateAddress reports whether the address can never have a public
// location: loopback, RFC1918/ULA, link-local, unspecified, or unparsable.
func IsPrivateAddress(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}

	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
