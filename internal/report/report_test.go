package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/deepresearch/internal/analysis"
	"github.com/hyperifyio/deepresearch/internal/research"
	"github.com/hyperifyio/deepresearch/internal/source"
)

func sampleResult() *research.Result {
	return &research.Result{
		RequestID: "req-1",
		Query:     "history of the Silk Road",
		Summary:   "The Silk Road linked China and the Mediterranean for centuries.",
		Status:    research.StatusCompleted,
		Sources: []source.Source{
			{URL: "https://example.org/silk", Title: "Silk Road Overview", Reliability: 0.65},
		},
		Bibliography: []string{"Silk Road Overview. example.org. https://example.org/silk"},
		FocusAreas: []analysis.FocusArea{
			{Area: "Historical origins of the trade routes", Priority: 1},
		},
		Reliability: 0.65,
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleResult())
	for _, want := range []string{
		"# Research Report: history of the Silk Road",
		"## Summary",
		"The Silk Road linked China",
		"## Focus Areas",
		"Historical origins of the trade routes (priority 1)",
		"## Sources",
		"[Silk Road Overview](https://example.org/silk)",
		"## Bibliography",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(md, "## Issues Encountered") {
		t.Error("issues section must be absent when there are no errors")
	}
}

func TestMarkdown_Errors(t *testing.T) {
	res := sampleResult()
	res.Errors = []string{"scrape https://x: too short"}
	md := Markdown(res)
	if !strings.Contains(md, "## Issues Encountered") || !strings.Contains(md, "too short") {
		t.Error("errors not rendered")
	}
}

func TestWritePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pdf")
	md := Markdown(sampleResult())
	if err := WritePDF(md, path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Fatalf("not a pdf: %q", string(data[:16]))
	}
}
