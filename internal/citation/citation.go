// Package citation formats sources into bibliographic strings. Formatting
// lives here rather than on the Source type; each style is a pure function of
// the source value.
package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperifyio/deepresearch/internal/source"
)

// Style names a citation format.
type Style string

const (
	APA     Style = "apa"
	MLA     Style = "mla"
	Chicago Style = "chicago"
	Harvard Style = "harvard"
	IEEE    Style = "ieee"
)

// ParseStyle maps a user-supplied name to a Style. Unknown names fall back
// to APA.
func ParseStyle(s string) Style {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case MLA:
		return MLA
	case Chicago:
		return Chicago
	case Harvard:
		return Harvard
	case IEEE:
		return IEEE
	default:
		return APA
	}
}

// Format renders one source in the given style.
func Format(style Style, s source.Source) string {
	var out string
	switch style {
	case MLA:
		out = formatMLA(s)
	case Chicago:
		out = formatChicago(s)
	case Harvard:
		out = formatHarvard(s)
	case IEEE:
		out = formatIEEE(s)
	default:
		out = formatAPA(s)
	}
	return cleanup(out)
}

var leadingIndexRe = regexp.MustCompile(`^\[\d+\]\s*`)

// Bibliography renders all sources in the given style. APA, MLA, Chicago,
// and Harvard bibliographies are sorted alphabetically; IEEE is numbered in
// the order given, stripping any leading [n] a formatter already produced.
func Bibliography(style Style, sources []source.Source) []string {
	entries := make([]string, 0, len(sources))
	for _, s := range sources {
		entries = append(entries, Format(style, s))
	}
	if style == IEEE {
		for i, e := range entries {
			entries[i] = fmt.Sprintf("[%d] %s", i+1, leadingIndexRe.ReplaceAllString(e, ""))
		}
		return entries
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i]) < strings.ToLower(entries[j])
	})
	return entries
}

func formatAPA(s source.Source) string {
	author := apaAuthor(s.Author)
	year := yearOf(s.PublicationDate)
	title := strings.TrimSpace(s.Title)
	site := siteName(s)
	if author == "" {
		return fmt.Sprintf("%s. (%s). %s. %s", title, year, site, s.URL)
	}
	return fmt.Sprintf("%s (%s). %s. %s. %s", author, year, title, site, s.URL)
}

func formatMLA(s source.Source) string {
	author := mlaAuthor(s.Author)
	date := dateOrND(s.PublicationDate)
	title := strings.TrimSpace(s.Title)
	site := siteName(s)
	if author == "" {
		return fmt.Sprintf("%q %s, %s, %s.", title+".", site, date, s.URL)
	}
	return fmt.Sprintf("%s. %q %s, %s, %s.", author, title+".", site, date, s.URL)
}

func formatChicago(s source.Source) string {
	author := mlaAuthor(s.Author)
	date := dateOrND(s.PublicationDate)
	title := strings.TrimSpace(s.Title)
	site := siteName(s)
	if author == "" {
		return fmt.Sprintf("%q %s. %s. %s.", title+".", site, date, s.URL)
	}
	return fmt.Sprintf("%s. %q %s. %s. %s.", author, title+".", site, date, s.URL)
}

func formatHarvard(s source.Source) string {
	author := harvardAuthor(s.Author)
	year := yearOf(s.PublicationDate)
	title := strings.TrimSpace(s.Title)
	site := siteName(s)
	accessed := ""
	if !s.AccessDate.IsZero() {
		accessed = fmt.Sprintf(" (Accessed: %s)", s.AccessDate.Format("2 January 2006"))
	}
	if author == "" {
		return fmt.Sprintf("%s (%s) %s. Available at: %s%s.", title, year, site, s.URL, accessed)
	}
	return fmt.Sprintf("%s (%s) %s. %s. Available at: %s%s.", author, year, title, site, s.URL, accessed)
}

func formatIEEE(s source.Source) string {
	author := ieeeAuthor(s.Author)
	year := yearOf(s.PublicationDate)
	title := strings.TrimSpace(s.Title)
	site := siteName(s)
	if author == "" {
		return fmt.Sprintf("\"%s,\" %s, %s. [Online]. Available: %s", title, site, year, s.URL)
	}
	return fmt.Sprintf("%s, \"%s,\" %s, %s. [Online]. Available: %s", author, title, site, year, s.URL)
}

// apaAuthor renders "Last, F. M." for a single author name.
func apaAuthor(name string) string {
	first, middles, last := splitName(name)
	if last == "" {
		return ""
	}
	if first == "" {
		return last
	}
	out := last + ", " + initial(first)
	for _, m := range middles {
		out += " " + initial(m)
	}
	return out
}

// mlaAuthor renders "Last, First" (also used by Chicago).
func mlaAuthor(name string) string {
	first, middles, last := splitName(name)
	if last == "" {
		return ""
	}
	if first == "" {
		return last
	}
	out := last + ", " + first
	if len(middles) > 0 {
		out += " " + strings.Join(middles, " ")
	}
	return out
}

// harvardAuthor renders "Last, F."
func harvardAuthor(name string) string {
	first, _, last := splitName(name)
	if last == "" {
		return ""
	}
	if first == "" {
		return last
	}
	return last + ", " + initial(first)
}

// ieeeAuthor renders "F. Last".
func ieeeAuthor(name string) string {
	first, _, last := splitName(name)
	if last == "" {
		return ""
	}
	if first == "" {
		return last
	}
	return initial(first) + " " + last
}

// splitName breaks a display name into first, middle, and last parts. A
// single token is treated as a bare last name.
func splitName(name string) (first string, middles []string, last string) {
	fields := strings.Fields(strings.TrimSpace(name))
	switch len(fields) {
	case 0:
		return "", nil, ""
	case 1:
		return "", nil, fields[0]
	default:
		return fields[0], fields[1 : len(fields)-1], fields[len(fields)-1]
	}
}

func initial(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	return strings.ToUpper(string(r[0])) + "."
}

var yearRe = regexp.MustCompile(`\b(\d{4})\b`)

// yearOf extracts a four-digit year from a free-form date, or "n.d.".
func yearOf(date string) string {
	if m := yearRe.FindStringSubmatch(date); m != nil {
		return m[1]
	}
	return "n.d."
}

func dateOrND(date string) string {
	if strings.TrimSpace(date) == "" {
		return "n.d."
	}
	return strings.TrimSpace(date)
}

func siteName(s source.Source) string {
	if strings.TrimSpace(s.SiteName) != "" {
		return strings.TrimSpace(s.SiteName)
	}
	return source.SiteNameFromURL(s.URL)
}

// cleanup collapses the artifacts empty fields leave behind: doubled
// separators, empty parentheses, and repeated whitespace.
func cleanup(s string) string {
	replacements := []struct{ old, new string }{
		{",,", ","},
		{", ,", ","},
		{"..", "."},
		{". .", "."},
		{"()", ""},
		{"( )", ""},
		{" ,", ","},
	}
	for {
		prev := s
		for _, r := range replacements {
			s = strings.ReplaceAll(s, r.old, r.new)
		}
		s = strings.Join(strings.Fields(s), " ")
		if s == prev {
			break
		}
	}
	return strings.TrimSpace(s)
}
