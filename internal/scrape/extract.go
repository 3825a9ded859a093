package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/deepresearch/internal/source"
)

// boilerplateSelector names the elements stripped before any text is taken.
const boilerplateSelector = "script, style, nav, header, footer, iframe, noscript"

// contentSelectors are the candidate content roots, tried against the
// stripped document. The longest non-empty candidate wins; body text is the
// last resort.
var contentSelectors = []string{
	"article",
	"[role=main]",
	".main-content",
	"#main-content",
	".post-content",
	".article-content",
}

// extractContent strips boilerplate and returns the text of the best content
// root.
func extractContent(doc *goquery.Document) string {
	doc.Find(boilerplateSelector).Remove()

	best := ""
	for _, sel := range contentSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if len(text) > len(best) {
			best = text
		}
	}
	if best != "" {
		return best
	}
	return strings.TrimSpace(doc.Find("body").Text())
}

// pageMeta carries the metadata scraped from one document.
type pageMeta struct {
	Title           string
	Author          string
	Description     string
	PublicationDate string
	SiteName        string
}

// authorSelectors are tried in order for a visible byline when no meta tag
// names an author.
var authorSelectors = []string{
	"[rel=author]",
	".author",
	".byline",
	".post-author",
	".article-author",
}

// extractMetadata picks each field from the first non-empty candidate:
// OpenGraph properties, then plain meta names, then visible document
// structure. Site name falls back to the URL host.
func extractMetadata(doc *goquery.Document, pageURL string) pageMeta {
	var m pageMeta

	m.Title = firstNonEmpty(
		metaProperty(doc, "og:title"),
		metaName(doc, "title"),
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find("h1").First().Text()),
	)
	m.Description = firstNonEmpty(
		metaProperty(doc, "og:description"),
		metaName(doc, "description"),
	)
	m.PublicationDate = firstNonEmpty(
		metaProperty(doc, "article:published_time"),
		metaName(doc, "date"),
		metaName(doc, "publication_date"),
		metaName(doc, "publish-date"),
	)
	m.Author = firstNonEmpty(
		metaName(doc, "author"),
		metaProperty(doc, "article:author"),
		visibleAuthor(doc),
	)
	m.SiteName = firstNonEmpty(
		metaProperty(doc, "og:site_name"),
		source.SiteNameFromURL(pageURL),
	)
	return m
}

func visibleAuthor(doc *goquery.Document) string {
	for _, sel := range authorSelectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func metaProperty(doc *goquery.Document, prop string) string {
	content, _ := doc.Find(`meta[property="` + prop + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func metaName(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
