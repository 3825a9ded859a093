package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.CacheTTL != 24*time.Hour {
		t.Errorf("cache ttl = %v", cfg.CacheTTL)
	}
	if cfg.CacheMaxEntries != 100 {
		t.Errorf("cache max entries = %d", cfg.CacheMaxEntries)
	}
	if cfg.RateLimitInterval != time.Second {
		t.Errorf("rate limit interval = %v", cfg.RateLimitInterval)
	}
	if !cfg.DuckDuckGo {
		t.Error("duckduckgo should default on")
	}
	if cfg.CitationStyle != "apa" {
		t.Errorf("citation style = %q", cfg.CitationStyle)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
llm:
  model: test-model
  base: http://llm.local/v1
engines:
  brave:
    enabled: false
    key: brv-key
  maxResults: 7
scrape:
  rateLimitInterval: 2s
cache:
  dir: /tmp/rcache
  ttl: 1h
research:
  maxSources: 3
  citationStyle: ieee
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := LoadFile(&cfg, path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLMModel != "test-model" || cfg.LLMBaseURL != "http://llm.local/v1" {
		t.Errorf("llm = %q %q", cfg.LLMModel, cfg.LLMBaseURL)
	}
	if cfg.BraveEnabled {
		t.Error("brave should be disabled by file")
	}
	if cfg.BraveAPIKey != "brv-key" {
		t.Errorf("brave key = %q", cfg.BraveAPIKey)
	}
	if cfg.EngineMaxResults != 7 {
		t.Errorf("max results = %d", cfg.EngineMaxResults)
	}
	if cfg.RateLimitInterval != 2*time.Second {
		t.Errorf("interval = %v", cfg.RateLimitInterval)
	}
	if cfg.CacheDir != "/tmp/rcache" || cfg.CacheTTL != time.Hour {
		t.Errorf("cache = %q %v", cfg.CacheDir, cfg.CacheTTL)
	}
	if cfg.MaxSources != 3 || cfg.CitationStyle != "ieee" {
		t.Errorf("research = %d %q", cfg.MaxSources, cfg.CitationStyle)
	}
	// untouched defaults survive
	if !cfg.TavilyEnabled || cfg.CacheMaxEntries != 100 {
		t.Error("unset file fields must keep defaults")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("BRAVE_API_KEY", "env-brave")
	t.Setenv("CACHE_TTL_SECONDS", "3600")
	t.Setenv("RATE_LIMIT_INTERVAL", "500ms")
	t.Setenv("DUCKDUCKGO_ENABLED", "false")
	t.Setenv("MAX_SOURCES", "8")

	cfg := Default()
	ApplyEnv(&cfg)
	if cfg.LLMModel != "env-model" || cfg.BraveAPIKey != "env-brave" {
		t.Errorf("strings: %q %q", cfg.LLMModel, cfg.BraveAPIKey)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("ttl from bare seconds = %v", cfg.CacheTTL)
	}
	if cfg.RateLimitInterval != 500*time.Millisecond {
		t.Errorf("interval = %v", cfg.RateLimitInterval)
	}
	if cfg.DuckDuckGo {
		t.Error("env false must disable duckduckgo")
	}
	if cfg.MaxSources != 8 {
		t.Errorf("max sources = %d", cfg.MaxSources)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err == nil {
		t.Error("missing model must fail validation")
	}
	cfg.LLMModel = "m"
	if err := Validate(cfg); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	cfg.DuckDuckGo = false
	if err := Validate(cfg); err == nil {
		t.Error("no engines must fail validation")
	}
	cfg.TavilyAPIKey = "k"
	if err := Validate(cfg); err != nil {
		t.Errorf("tavily key should satisfy engine check: %v", err)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.env")
	second := filepath.Join(dir, "b.env")
	os.WriteFile(first, []byte("# comment\nDR_TEST_KEY=one\nDR_TEST_QUOTED='hello world'\nmalformed\n"), 0o644)
	os.WriteFile(second, []byte("DR_TEST_KEY=two\n"), 0o644)
	t.Cleanup(func() {
		os.Unsetenv("DR_TEST_KEY")
		os.Unsetenv("DR_TEST_QUOTED")
	})

	if err := LoadEnvFiles(first, filepath.Join(dir, "missing.env"), second); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("DR_TEST_KEY"); got != "two" {
		t.Errorf("later file must win, got %q", got)
	}
	if got := os.Getenv("DR_TEST_QUOTED"); got != "hello world" {
		t.Errorf("quotes must be stripped, got %q", got)
	}
}
