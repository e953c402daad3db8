package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeBaseURL standardizes the base address that every published URL is built from
// It requires an http or https scheme and a host, lowercases both, removes default ports, drops query and fragment and strips trailing slashes from the path
// Path case is preserved
func NormalizeBaseURL(raw string) (string, error) {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(raw)) // Stricter parsing
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", raw)
	}

	normalized := *parsed
	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)
	if normalized.Scheme != "http" && normalized.Scheme != "https" {
		return "", fmt.Errorf("base url %q must use http or https", raw)
	}

	// Remove default ports
	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	normalized.Path = strings.TrimRight(normalized.Path, "/")
	normalized.RawPath = ""
	normalized.Fragment = ""
	normalized.RawQuery = ""
	normalized.ForceQuery = false

	return normalized.String(), nil
}

// URLPath returns the path component of an absolute URL, or "/" when it has none
func URLPath(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}
