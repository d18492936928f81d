package tracking

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client's address from the request. The first entry of
// X-Forwarded-For wins when a proxy chain is in front; otherwise the socket
// peer address is used.
func ClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
