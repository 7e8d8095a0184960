// Package security provides shared validation for URLs taken from content
// and placed into rendered pages.
package security

import (
	"fmt"
	"net/url"
	"strings"
)

// allowedSchemes are the link schemes that may appear in an href or src.
var allowedSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
	"tel":    true,
}

// ValidateLinkURL checks that raw is safe to render as a link or image
// source. Root-relative paths and fragments are allowed; absolute URLs must
// use an allowed scheme, and http(s) URLs must have a host.
func ValidateLinkURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("URL is empty")
	}

	// Protocol-relative URLs inherit the page scheme but point off-site.
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return fmt.Errorf("protocol-relative URLs are not allowed")
	}
	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "#") {
		return nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		return fmt.Errorf("URL must be absolute or root-relative")
	}
	if !allowedSchemes[scheme] {
		return fmt.Errorf("URL scheme %q is not allowed", parsed.Scheme)
	}
	if (scheme == "http" || scheme == "https") && parsed.Hostname() == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// SafeLink returns raw trimmed, or "" when it fails ValidateLinkURL.
func SafeLink(raw string) string {
	if ValidateLinkURL(raw) != nil {
		return ""
	}
	return strings.TrimSpace(raw)
}

// ResolveAgainst makes a root-relative path absolute against base, the
// origin that served it. Other values are returned unchanged.
func ResolveAgainst(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if base == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return raw
	}
	return strings.TrimRight(base, "/") + raw
}
