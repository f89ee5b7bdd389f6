// Package identity derives anonymous client keys from request metadata.
//
// The derived key is an anti-abuse heuristic, not authentication: every input
// it uses is client-controlled and trivially spoofed.
package identity

import (
	"net"
	"net/http"
	"strings"
)

const (
	// UserAgentPrefixLen bounds how much of the user agent participates in the key.
	UserAgentPrefixLen = 50
	unknownIP          = "unknown"
)

// ClientIdentity returns the rate-limit partition key for r: the originating
// IP followed by a truncated user agent.
func ClientIdentity(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	if len(ua) > UserAgentPrefixLen {
		ua = ua[:UserAgentPrefixLen]
	}
	return OriginIP(r) + "|" + ua
}

// OriginIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func OriginIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := IPFromRequest(r); ip != "" {
		return ip
	}
	return unknownIP
}

// IPFromRequest returns a normalized remote IP from the connection address.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
