package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP determines the originating client address for rate limiting.
// Proxy headers are consulted first; the leftmost X-Forwarded-For entry is
// the original client.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if candidate, _, ok := strings.Cut(fwd, ","); ok || candidate != "" {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
