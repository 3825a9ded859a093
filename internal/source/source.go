// Package source defines the post-fetch, content-bearing artifact shared by
// the scraping, scoring, synthesis, and citation stages.
package source

import (
	"net/url"
	"strings"
	"time"
)

// Source is a scraped page promoted to research material: scored content plus
// the metadata the citation formatters need. It is a value type; callers own
// their copies.
type Source struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	PublicationDate string    `json:"publication_date,omitempty"`
	SiteName        string    `json:"site_name"`
	Content         string    `json:"content"`
	Snippet         string    `json:"snippet"`
	AccessDate      time.Time `json:"access_date"`
	Reliability     float64   `json:"reliability"`
	ContentHash     string    `json:"content_hash"`
}

// SiteNameFromURL derives a fallback site name from the URL host with any
// leading "www." stripped.
func SiteNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
