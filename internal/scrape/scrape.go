// Package scrape turns a URL into cleaned, metadata-bearing page content
// while honoring robots.txt and per-host rate limits.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/ratelimit"
	"github.com/hyperifyio/deepresearch/internal/robots"
)

const (
	// DefaultMaxContentSize bounds the raw response body.
	DefaultMaxContentSize = 5 << 20
	// DefaultMaxSanitizedBytes caps cleaned content per source.
	DefaultMaxSanitizedBytes = 500 << 10
	// DefaultMaxConcurrent limits in-flight fetches per scraper.
	DefaultMaxConcurrent = 5
	// DefaultTimeout bounds one fetch end to end.
	DefaultTimeout = 30 * time.Second

	// minWords below which a page is not usable research material.
	minWords = 50

	// defaultReferer keeps origins from seeing this as a cold direct hit.
	defaultReferer = "https://duckduckgo.com/"
)

// allowedContentTypes whitelists response MIME types worth parsing.
var allowedContentTypes = []string{"text/html", "application/xhtml+xml", "text/plain"}

// Result is the outcome of scraping one URL. Invalid results carry the
// failure reason in Error and are cached alongside valid ones so a bad URL
// is not re-fetched shortly after.
type Result struct {
	URL             string    `json:"url"`
	Content         string    `json:"content"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	Description     string    `json:"description,omitempty"`
	PublicationDate string    `json:"publication_date,omitempty"`
	SiteName        string    `json:"site_name"`
	AccessTime      time.Time `json:"access_time"`
	ContentType     string    `json:"content_type"`
	WordCount       int       `json:"word_count"`
	ContentHash     string    `json:"content_hash"`
	StatusCode      int       `json:"status_code"`
	Valid           bool      `json:"is_valid"`
	Error           string    `json:"error,omitempty"`
}

// Scraper fetches and normalizes page content. Callers may invoke Fetch from
// many goroutines; MaxConcurrent gates in-flight requests and the rate
// limiter serializes same-host fetches.
type Scraper struct {
	HTTPClient *http.Client
	UserAgent  string
	Referer    string
	// Timeout bounds one fetch. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxContentSize rejects bodies larger than this, declared or streamed.
	MaxContentSize int64
	// MaxSanitizedBytes caps cleaned content.
	MaxSanitizedBytes int
	// MaxConcurrent limits concurrent fetches. Zero means DefaultMaxConcurrent.
	MaxConcurrent int
	// AllowPrivateHosts permits localhost and RFC1918 targets (tests).
	AllowPrivateHosts bool

	Robots  *robots.Manager
	Limiter *ratelimit.Limiter
	// Cache is the page namespace store; nil disables caching.
	Cache *cache.Store

	gate     chan struct{}
	gateOnce sync.Once
	now      func() time.Time
}

// Fetch resolves url to a Result, consulting the page cache first. It never
// returns an error for per-page failures; those are reported in the Result.
// The returned error is non-nil only for context cancellation.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (Result, error) {
	if cached, ok := s.cacheGet(rawURL); ok {
		log.Debug().Str("url", rawURL).Msg("page cache hit")
		return cached, nil
	}

	res := s.fetchFresh(ctx, rawURL)
	if err := ctx.Err(); err != nil {
		// A cancelled fetch is transient; do not poison the cache with it.
		return res, err
	}
	s.cachePut(res)
	return res, nil
}

func (s *Scraper) fetchFresh(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL, AccessTime: s.clock()(), SiteName: siteNameOf(rawURL)}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" || !isHTTPScheme(u) {
		return invalid(res, "invalid URL")
	}
	if !s.AllowPrivateHosts && isLocalOrPrivateHost(u.Hostname()) {
		return invalid(res, "private host not allowed")
	}
	if s.Robots != nil && !s.Robots.IsAllowed(ctx, rawURL, s.UserAgent) {
		return invalid(res, "disallowed by robots")
	}
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx, u.Hostname()); err != nil {
			return invalid(res, "rate limit wait: "+err.Error())
		}
	}

	s.acquire()
	defer s.release()

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return invalid(res, "new request: "+err.Error())
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	referer := s.Referer
	if referer == "" {
		referer = defaultReferer
	}
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return invalid(res, "fetch: "+err.Error())
	}
	defer resp.Body.Close()
	res.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return invalid(res, fmt.Sprintf("unexpected status: %d", resp.StatusCode))
	}
	res.ContentType = resp.Header.Get("Content-Type")
	if !isAllowedContentType(res.ContentType) {
		return invalid(res, "unsupported content type: "+res.ContentType)
	}
	maxSize := s.MaxContentSize
	if maxSize <= 0 {
		maxSize = DefaultMaxContentSize
	}
	if resp.ContentLength > maxSize {
		return invalid(res, fmt.Sprintf("content too large: declared %d bytes", resp.ContentLength))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return invalid(res, "read body: "+err.Error())
	}
	if int64(len(body)) > maxSize {
		return invalid(res, fmt.Sprintf("content too large: exceeds %d bytes", maxSize))
	}

	return s.parse(res, body)
}

// parse extracts, sanitizes, and validates the fetched body.
func (s *Scraper) parse(res Result, body []byte) Result {
	var text string
	if strings.HasPrefix(mediaType(res.ContentType), "text/plain") {
		text = string(body)
	} else {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			return invalid(res, "parse html: "+err.Error())
		}
		meta := extractMetadata(doc, res.URL)
		res.Title = meta.Title
		res.Author = meta.Author
		res.Description = meta.Description
		res.PublicationDate = meta.PublicationDate
		if meta.SiteName != "" {
			res.SiteName = meta.SiteName
		}
		text = extractContent(doc)
	}

	maxBytes := s.MaxSanitizedBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSanitizedBytes
	}
	res.Content = sanitize(text, maxBytes)
	res.WordCount = wordCount(res.Content)
	res.ContentHash = ContentHash(res.Content)

	if res.Content == "" {
		return invalid(res, "no content extracted")
	}
	if res.WordCount < minWords {
		return invalid(res, fmt.Sprintf("content too short: %d words", res.WordCount))
	}
	res.Valid = true
	return res
}

// ContentHash returns the stable fixed-width digest used for content
// identity: equal hashes imply equal content for all practical purposes.
func ContentHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

func (s *Scraper) cacheGet(rawURL string) (Result, bool) {
	if s.Cache == nil {
		return Result{}, false
	}
	data, err := s.Cache.Get(pageKey(rawURL))
	if err != nil {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		_ = s.Cache.Delete(pageKey(rawURL))
		return Result{}, false
	}
	return res, true
}

func (s *Scraper) cachePut(res Result) {
	if s.Cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.Cache.Set(pageKey(res.URL), data, map[string]string{"query": res.URL}); err != nil {
		log.Warn().Err(err).Str("url", res.URL).Msg("page cache store failed")
	}
}

func pageKey(rawURL string) string {
	return cache.Key(rawURL, map[string]string{"kind": "page"})
}

func invalid(res Result, reason string) Result {
	res.Valid = false
	res.Error = reason
	return res
}

func (s *Scraper) clock() func() time.Time {
	if s.now != nil {
		return s.now
	}
	return time.Now
}

func (s *Scraper) acquire() {
	s.gateOnce.Do(func() {
		n := s.MaxConcurrent
		if n <= 0 {
			n = DefaultMaxConcurrent
		}
		s.gate = make(chan struct{}, n)
	})
	s.gate <- struct{}{}
}

func (s *Scraper) release() {
	<-s.gate
}

func isHTTPScheme(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedContentType(ct string) bool {
	mt := mediaType(ct)
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(mt, allowed) {
			return true
		}
	}
	return false
}

func mediaType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func siteNameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func isLocalOrPrivateHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || h == "localhost.localdomain" || h == "::1" || h == "[::1]" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
	}
	return false
}
