package common

import (
	"net/url"
	"strings"
)

// HostOf returns the lower-cased host of rawURL without port, or "" when
// the URL cannot be parsed.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// HostAllowed reports whether host equals an allowlist entry or is a
// subdomain of one. Entries are compared case-insensitively.
func HostAllowed(host string, allowlist []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, allowed := range allowlist {
		allowed = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(allowed), "."))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// ContainsAny reports whether s contains any of the non-empty substrings
func ContainsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Preview returns a log-safe prefix of a secret value
func Preview(secret string, n int) string {
	if secret == "" {
		return ""
	}
	if n <= 0 || len(secret) <= n {
		return strings.Repeat("*", min(len(secret), 8))
	}
	return secret[:n] + "..."
}
