package research

import (
	"fmt"
	"strings"

	"github.com/hyperifyio/deepresearch/internal/analysis"
)

// analysisPrompt asks the model to decompose a question into prioritized
// research gaps in the format the parser understands.
func analysisPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are a research strategist. Analyze the question below and identify the most important areas to research.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString("Respond with exactly these sections:\n\n")
	b.WriteString("Original Question Analysis:\n")
	b.WriteString("<one short paragraph restating what the question is really asking>\n\n")
	b.WriteString("Research Gaps:\n")
	b.WriteString("1. <first area to investigate> [Priority: 1]\n")
	b.WriteString("2. <second area to investigate> [Priority: 2]\n")
	b.WriteString("<continue up to 5 items, each 10 to 500 characters, priorities 1 (highest) to 5>\n")
	return b.String()
}

// strictAnalysisPrompt is the retry used when the first response failed to
// parse. It repeats the template with no room for prose.
func strictAnalysisPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Your previous answer could not be parsed. Answer again using EXACTLY this template and nothing else:\n\n")
	b.WriteString("Original Question Analysis:\n")
	fmt.Fprintf(&b, "Analysis of: %s\n\n", query)
	b.WriteString("Research Gaps:\n")
	b.WriteString("1. First research area in plain text [Priority: 1]\n")
	b.WriteString("2. Second research area in plain text [Priority: 2]\n")
	b.WriteString("3. Third research area in plain text [Priority: 3]\n")
	return b.String()
}

// pageSummaryPrompt asks for a short factual summary of one page, scoped to
// the focus area being researched.
func pageSummaryPrompt(query, focusArea, content string) string {
	var b strings.Builder
	b.WriteString("Summarize the key facts in the page content below in 3 to 5 sentences.\n")
	fmt.Fprintf(&b, "The reader is researching: %s\n", query)
	if focusArea != "" {
		fmt.Fprintf(&b, "Current focus: %s\n", focusArea)
	}
	b.WriteString("Only state facts present in the content. Do not speculate.\n\n")
	b.WriteString("Page content:\n")
	b.WriteString(content)
	return b.String()
}

// reportEntry is one (url, summary) pair fed to the synthesis prompt.
type reportEntry struct {
	URL     string
	Summary string
}

// reportPrompt assembles the final synthesis request from the focus areas
// and per-source summaries.
func reportPrompt(query string, areas []analysis.FocusArea, entries []reportEntry) string {
	var b strings.Builder
	b.WriteString("Write a comprehensive research report answering the question below.\n")
	b.WriteString("Use only the source summaries provided. Cite sources inline by their URL in square brackets.\n\n")
	fmt.Fprintf(&b, "Original Query: %s\n\n", query)
	b.WriteString("Focus Areas:\n")
	for _, a := range areas {
		fmt.Fprintf(&b, "- %s (priority %d)\n", a.Area, a.Priority)
	}
	b.WriteString("\nSources:\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, e.URL, e.Summary)
	}
	b.WriteString("Structure the report with an introduction, findings per focus area, and a short conclusion.\n")
	return b.String()
}

// fallbackSummary is the deterministic report used when synthesis fails or
// when no sources could be gathered.
func fallbackSummary(query string, areas []analysis.FocusArea, sourceCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research summary for: %s\n\n", query)
	b.WriteString("The following focus areas were identified:\n")
	for _, a := range areas {
		fmt.Fprintf(&b, "- %s (priority %d)\n", a.Area, a.Priority)
	}
	if sourceCount > 0 {
		fmt.Fprintf(&b, "\n%d source(s) were gathered, but an automated report could not be generated. Consult the cited sources directly.\n", sourceCount)
	} else {
		b.WriteString("\nNo usable sources were found for this query. Try rephrasing or broadening the question.\n")
	}
	return b.String()
}
