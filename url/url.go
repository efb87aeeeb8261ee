package url

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// RefusalError indicates a URL was rejected by the SSRF admission policy.
type RefusalError struct {
	Reason string
}

func (e *RefusalError) Error() string {
	return "url refused: " + e.Reason
}

// loopbackNames are hostnames refused unless private addresses are allowed.
var loopbackNames = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
	"0.0.0.0":   true,
}

// metadataHosts are cloud metadata endpoints. These are refused even when
// private addresses are allowed; leaking instance credentials is never ok.
var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"metadata.google.internal": true,
	"metadata.goog":            true,
}

// ParseAndValidate parses a URL string and validates it is an absolute
// http(s) URL with a non-empty host.
func ParseAndValidate(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, &RefusalError{Reason: fmt.Sprintf("unsupported scheme: %q", parsedURL.Scheme)}
	}

	if parsedURL.Host == "" {
		return nil, &RefusalError{Reason: "url has no host"}
	}

	return parsedURL, nil
}

// Check admits a URL for fetching or returns a RefusalError.
//
// The checks run in order: scheme and host validation, loopback hostname
// blocklist, cloud metadata blocklist, IP-literal range checks, and finally a
// DNS re-resolution check that defends against rebinding to private ranges.
// Resolution failure does not refuse admission; the fetcher surfaces the
// transport error instead.
func Check(rawURL string, allowPrivate bool) error {
	parsedURL, err := ParseAndValidate(rawURL)
	if err != nil {
		return err
	}

	hostname := strings.ToLower(parsedURL.Hostname())

	if !allowPrivate && loopbackNames[hostname] {
		return &RefusalError{Reason: fmt.Sprintf("cannot fetch localhost: %s", hostname)}
	}

	if metadataHosts[hostname] {
		return &RefusalError{Reason: fmt.Sprintf("cannot fetch cloud metadata endpoint: %s", hostname)}
	}

	if allowPrivate {
		return nil
	}

	if ip := net.ParseIP(hostname); ip != nil {
		switch {
		case ip.IsPrivate():
			return &RefusalError{Reason: fmt.Sprintf("cannot fetch private IP: %s", hostname)}
		case ip.IsLoopback():
			return &RefusalError{Reason: fmt.Sprintf("cannot fetch loopback IP: %s", hostname)}
		case isLinkLocal(ip):
			return &RefusalError{Reason: fmt.Sprintf("cannot fetch link-local IP: %s", hostname)}
		case isReserved(ip):
			return &RefusalError{Reason: fmt.Sprintf("cannot fetch reserved IP: %s", hostname)}
		}
		return nil
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil
	}

	for _, resolved := range ips {
		if resolved.IsPrivate() || resolved.IsLoopback() || isLinkLocal(resolved) {
			return &RefusalError{
				Reason: fmt.Sprintf("hostname %s resolves to blocked IP: %s", hostname, resolved),
			}
		}
	}

	return nil
}

// isLinkLocal reports whether ip is in 169.254.0.0/16 or fe80::/10, the
// ranges used by cloud metadata endpoints.
func isLinkLocal(ip net.IP) bool {
	return ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// isReserved reports whether ip falls in an IETF-reserved range
// (240.0.0.0/4 for IPv4, or the unspecified address).
func isReserved(ip net.IP) bool {
	if ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] >= 240
	}
	return false
}

// ExtractHost extracts the host (hostname:port or just hostname) from a URL string.
func ExtractHost(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	if parsedURL.Host == "" {
		return "", fmt.Errorf("url has no host: %s", urlStr)
	}

	return parsedURL.Host, nil
}

// Origin returns the scheme://host origin of a URL.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
