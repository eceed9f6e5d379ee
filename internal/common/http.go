package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address. Forwarded headers are
// trusted here because the service runs behind its own proxy; the first
// parseable X-Forwarded-For entry wins, then X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, entry := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if candidate := strings.TrimSpace(entry); candidate != "" && net.ParseIP(candidate) != nil {
			return candidate
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
