// Package search fans a query out to multiple web search engines and merges
// the hits into one deduplicated list.
package search

import (
	"context"
	"net/url"
	"strings"
)

// Hit is a single search result prior to fetch.
type Hit struct {
	URL     string
	Title   string
	Snippet string
	Engine  string
}

// Provider is the per-engine adapter contract.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	Name() string
	// Enabled reports whether the engine may be queried (configured, keyed).
	Enabled() bool
}

// NormalizeURL canonicalizes a hit URL for deduplication: the fragment is
// stripped, scheme and host are lowercased, and common tracking parameters
// are removed. Only absolute http(s) URLs survive.
func NormalizeURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	q := u.Query()
	for _, p := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "utm_id", "gclid", "fbclid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String(), true
}
