// Package clientip resolves the client IP for an inbound request from the
// peer address and forwarded headers.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Resolve extracts the client IP: start from the peer address, override
// with the first X-Forwarded-For element if present, then override again
// with CF-Connecting-IP if present. Always returns a non-empty string.
func Resolve(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if trimmed := strings.TrimSpace(first); trimmed != "" {
			ip = trimmed
		}
	}

	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		ip = cf
	}

	if ip == "" {
		// No peer address and no forwarded headers: still must return a
		// non-empty string per the resolver's contract.
		return "unknown"
	}
	return ip
}
