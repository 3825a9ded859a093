// Package report renders a finished research result as Markdown or PDF.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperifyio/deepresearch/internal/research"
)

// Markdown assembles the final report document: summary, focus areas,
// sources with reliability, and the bibliography.
func Markdown(res *research.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", res.Query)
	fmt.Fprintf(&b, "Generated %s. Status: %s. %d source(s), mean reliability %.2f.\n\n",
		time.Now().Format("2006-01-02"), res.Status, len(res.Sources), res.Reliability)

	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(res.Summary))
	b.WriteString("\n\n")

	if len(res.FocusAreas) > 0 {
		b.WriteString("## Focus Areas\n\n")
		for _, a := range res.FocusAreas {
			fmt.Fprintf(&b, "- %s (priority %d)\n", a.Area, a.Priority)
		}
		b.WriteString("\n")
	}

	if len(res.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for i, s := range res.Sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			fmt.Fprintf(&b, "%d. [%s](%s) (reliability %.2f)\n", i+1, title, s.URL, s.Reliability)
		}
		b.WriteString("\n")
	}

	if len(res.Bibliography) > 0 {
		b.WriteString("## Bibliography\n\n")
		for _, entry := range res.Bibliography {
			fmt.Fprintf(&b, "- %s\n", entry)
		}
		b.WriteString("\n")
	}

	if len(res.Errors) > 0 {
		b.WriteString("## Issues Encountered\n\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	return b.String()
}
