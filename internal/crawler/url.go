package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL reduces a URL to the form used for visit deduplication.
// Query, fragment, one trailing slash, and a leading "www." host label are
// dropped; scheme, host, port, and path are kept.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse url: %q is not absolute", rawURL)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}

	out := strings.ToLower(u.Scheme) + "://" + host + u.EscapedPath()
	return strings.TrimSuffix(out, "/"), nil
}

// IsSameDomain compares the last two host labels of root and candidate.
// Unparseable or hostless URLs never match.
func IsSameDomain(root, candidate string) bool {
	a := rootDomain(root)
	b := rootDomain(candidate)
	return a != "" && a == b
}

func rootDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// ParseAbsolute accepts only absolute http and https URLs.
func ParseAbsolute(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, false
	}
	if u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// FilterLinks keeps absolute http(s) links with fragments removed, in
// first-seen order and without duplicates.
func FilterLinks(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		u, ok := ParseAbsolute(link)
		if !ok {
			continue
		}
		u.Fragment = ""
		s := u.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
