// Package analysis turns an LLM's free-form strategic analysis into validated
// research focus areas.
package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxFocusAreas caps how many areas one run works through.
	MaxFocusAreas = 5

	minAreaChars = 10
	maxAreaChars = 500

	defaultPriority = 3
	minPriority     = 1
	maxPriority     = 5

	// FallbackConfidence is assigned when the parser gives up and the
	// orchestrator synthesizes focus areas itself.
	FallbackConfidence = 0.3
)

// FocusArea is one prioritized sub-topic of the user's question.
type FocusArea struct {
	Area          string    `json:"area"`
	Priority      int       `json:"priority"`
	SourceQuery   string    `json:"source_query"`
	SearchQueries []string  `json:"search_queries,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Result is the validated outcome of parsing one analysis response.
type Result struct {
	OriginalQuestion string      `json:"original_question"`
	FocusAreas       []FocusArea `json:"focus_areas"`
	RawResponse      string      `json:"raw_response"`
	Confidence       float64     `json:"confidence"`
	CreatedAt        time.Time   `json:"created_at"`
}

var (
	questionSectionRe = regexp.MustCompile(`(?is)original question analysis:\s*(.*?)(?:\n[ \t]*\n|$)`)
	gapsHeaderRe      = regexp.MustCompile(`(?i)research gaps:`)
	itemRe            = regexp.MustCompile(`^\s*\d{1,2}[.)]\s+(.*)$`)
	priorityRe        = regexp.MustCompile(`(?i)\[\s*priority:\s*(-?\d+)\s*\]`)
)

// Parse extracts focus areas from raw LLM text. It returns nil when no valid
// item can be recovered; the orchestrator falls back in that case.
func Parse(question, raw string) *Result {
	text := normalize(raw)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	areas := parseGaps(question, text)
	if len(areas) == 0 {
		return nil
	}
	return &Result{
		OriginalQuestion: question,
		FocusAreas:       areas,
		RawResponse:      raw,
		Confidence:       confidence(question, areas),
		CreatedAt:        time.Now().UTC(),
	}
}

// Fallback synthesizes a deterministic two-item analysis used when the model
// output never parses: a broad understanding area and a current-developments
// area built from the question's leading keywords.
func Fallback(question string) *Result {
	now := time.Now().UTC()
	areas := []FocusArea{
		{
			Area:        "Understanding " + question,
			Priority:    1,
			SourceQuery: question,
			CreatedAt:   now,
		},
		{
			Area:        "Current developments in " + firstKeywords(question, 3),
			Priority:    2,
			SourceQuery: question,
			CreatedAt:   now,
		},
	}
	return &Result{
		OriginalQuestion: question,
		FocusAreas:       areas,
		Confidence:       FallbackConfidence,
		CreatedAt:        now,
	}
}

// QuestionSummary returns the text following "Original Question Analysis:"
// up to the next blank line, or "" when the section is absent.
func QuestionSummary(raw string) string {
	m := questionSectionRe.FindStringSubmatch(normalize(raw))
	if m == nil {
		return ""
	}
	return collapseSpaces(strings.TrimSpace(m[1]))
}

// parseGaps walks the enumeration under the "Research Gaps:" header. Items
// look like "N. <area text> [Priority: P]"; the priority tag is optional.
func parseGaps(question, text string) []FocusArea {
	loc := gapsHeaderRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	section := text[loc[1]:]
	now := time.Now().UTC()

	var areas []FocusArea
	for _, line := range strings.Split(section, "\n") {
		m := itemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[1])
		priority := defaultPriority
		if pm := priorityRe.FindStringSubmatch(body); pm != nil {
			if n, err := strconv.Atoi(pm[1]); err == nil {
				priority = clampPriority(n)
			}
			body = strings.TrimSpace(priorityRe.ReplaceAllString(body, ""))
		}
		body = collapseSpaces(body)
		if len(body) < minAreaChars || len(body) > maxAreaChars {
			continue
		}
		areas = append(areas, FocusArea{
			Area:        body,
			Priority:    priority,
			SourceQuery: question,
			CreatedAt:   now,
		})
		if len(areas) == MaxFocusAreas {
			break
		}
	}
	return areas
}

// confidence scores how well-formed the analysis is:
// 0.3 for a question of three or more words, 0.2 scaled by area count,
// 0.2 scaled by distinct priorities, 0.3 scaled by the fraction of areas
// that have at least three words and an in-range priority. Rounded to two
// decimals.
func confidence(question string, areas []FocusArea) float64 {
	var c float64
	if len(strings.Fields(question)) >= 3 {
		c += 0.3
	}
	n := len(areas)
	if n > MaxFocusAreas {
		n = MaxFocusAreas
	}
	c += 0.2 * float64(n) / float64(MaxFocusAreas)

	distinct := make(map[int]struct{})
	wellFormed := 0
	for _, a := range areas {
		distinct[a.Priority] = struct{}{}
		if len(strings.Fields(a.Area)) >= 3 && a.Priority >= minPriority && a.Priority <= maxPriority {
			wellFormed++
		}
	}
	c += 0.2 * float64(len(distinct)) / float64(MaxFocusAreas)
	if len(areas) > 0 {
		c += 0.3 * float64(wellFormed) / float64(len(areas))
	}
	return math.Round(c*100) / 100
}

func clampPriority(p int) int {
	if p < minPriority {
		return minPriority
	}
	if p > maxPriority {
		return maxPriority
	}
	return p
}

// normalize standardizes line endings and trims trailing whitespace per line
// while preserving paragraph breaks.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstKeywords(question string, n int) string {
	fields := strings.Fields(question)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
