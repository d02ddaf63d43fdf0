package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey derives the counter key for a request. An explicit override
// (typically the authenticated user id) wins over network identity so
// callers behind a shared NAT or proxy do not pool into one bucket.
// Forwarding headers are consulted only when trustProxy is set; deployments
// without a trusted proxy boundary must disable it.
func ClientKey(r *http.Request, override string, trustProxy bool) string {
	if override != "" {
		return override
	}
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
				return strings.TrimSpace(first)
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
