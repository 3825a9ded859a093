package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DuckDuckGo implements Provider by scraping the HTML results endpoint. It
// needs no API key, so it serves as the always-available engine.
type DuckDuckGo struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Timeout    time.Duration
	MaxResults int
	Disabled   bool
}

const duckduckgoEndpoint = "https://html.duckduckgo.com/html/"

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Enabled() bool { return !d.Disabled }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 || (d.MaxResults > 0 && limit > d.MaxResults) {
		limit = d.MaxResults
	}
	if limit <= 0 {
		limit = 10
	}
	base := d.BaseURL
	if base == "" {
		base = duckduckgoEndpoint
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	ctx, cancel := withTimeout(ctx, d.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	resp, err := httpClientOrDefault(d.HTTPClient, d.Timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("duckduckgo status: %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo parse: %w", err)
	}

	out := make([]Hit, 0, limit)
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveRedirect(href)
		title := strings.TrimSpace(link.Text())
		if target == "" || title == "" {
			return true
		}
		out = append(out, Hit{
			URL:     target,
			Title:   title,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
			Engine:  d.Name(),
		})
		return len(out) < limit
	})
	return out, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<url> redirect links. Direct
// links pass through unchanged.
func resolveRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if !u.IsAbs() {
		return ""
	}
	return u.String()
}
