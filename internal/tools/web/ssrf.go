// Package web implements the FetchUrl and WebSearch catalog entries:
// outbound HTTP fetch and extraction with SSRF protection, and search
// across a small set of pluggable backends.
package web

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// isPrivateOrReservedIP reports whether ip must never be reached by a
// server-initiated fetch: loopback, link-local, private ranges, the
// cloud metadata address, and multicast.
func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return true
	}
	return false
}

// validateURLForSSRF rejects non-http(s) schemes, localhost variants, and
// any hostname that resolves to a private or reserved address.
func validateURLForSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	lower := strings.ToLower(hostname)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		// Resolution failures are left to the HTTP client; blocking here
		// would reject hosts behind a resolving proxy.
		return nil
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("URL resolves to a private or reserved address")
		}
	}
	return nil
}
