// Package config assembles runtime settings from defaults, an optional YAML
// file, and environment variables. Flags stay with the CLI; it overlays the
// result last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// LLM endpoint, OpenAI-compatible.
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// Search engines.
	BraveAPIKey      string
	TavilyAPIKey     string
	BraveEnabled     bool
	TavilyEnabled    bool
	DuckDuckGo       bool
	EngineMaxResults int
	EngineTimeout    time.Duration

	// Scraping.
	UserAgent           string
	MaxConcurrentFetch  int
	MaxContentSize      int64
	ScrapeTimeout       time.Duration
	RateLimitInterval   time.Duration
	AllowPrivateHosts   bool

	// Caching.
	CacheDir        string
	CacheTTL        time.Duration
	CacheMaxEntries int
	CacheClear      bool

	// Research defaults.
	MaxSources    int
	CitationStyle string
	Continuous    bool
	ForceRefresh  bool

	Verbose bool
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		BraveEnabled:       true,
		TavilyEnabled:      true,
		DuckDuckGo:         true,
		EngineMaxResults:   10,
		EngineTimeout:      30 * time.Second,
		UserAgent:          "deepresearch/1.0 (+https://github.com/hyperifyio/deepresearch)",
		MaxConcurrentFetch: 5,
		MaxContentSize:     5 << 20,
		ScrapeTimeout:      30 * time.Second,
		RateLimitInterval:  time.Second,
		CacheDir:           ".deepresearch-cache",
		CacheTTL:           24 * time.Hour,
		CacheMaxEntries:    100,
		MaxSources:         5,
		CitationStyle:      "apa",
	}
}

// FileConfig is the YAML schema for the optional config file.
type FileConfig struct {
	LLM struct {
		BaseURL string `yaml:"base"`
		Model   string `yaml:"model"`
		APIKey  string `yaml:"key"`
	} `yaml:"llm"`

	Engines struct {
		Brave struct {
			Enabled *bool  `yaml:"enabled"`
			APIKey  string `yaml:"key"`
		} `yaml:"brave"`
		Tavily struct {
			Enabled *bool  `yaml:"enabled"`
			APIKey  string `yaml:"key"`
		} `yaml:"tavily"`
		DuckDuckGo struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"duckduckgo"`
		MaxResults int           `yaml:"maxResults"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"engines"`

	Scrape struct {
		UserAgent         string        `yaml:"userAgent"`
		MaxConcurrent     int           `yaml:"maxConcurrent"`
		MaxContentSize    int64         `yaml:"maxContentSize"`
		Timeout           time.Duration `yaml:"timeout"`
		RateLimitInterval time.Duration `yaml:"rateLimitInterval"`
	} `yaml:"scrape"`

	Cache struct {
		Dir        string        `yaml:"dir"`
		TTL        time.Duration `yaml:"ttl"`
		MaxEntries int           `yaml:"maxEntries"`
	} `yaml:"cache"`

	Research struct {
		MaxSources    int    `yaml:"maxSources"`
		CitationStyle string `yaml:"citationStyle"`
		Continuous    bool   `yaml:"continuous"`
	} `yaml:"research"`

	Verbose bool `yaml:"verbose"`
}

// LoadFile reads a YAML config file and overlays it onto cfg. Zero values in
// the file leave cfg untouched.
func LoadFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	applyFile(cfg, fc)
	return nil
}

func applyFile(cfg *Config, fc FileConfig) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setStr(&cfg.LLMBaseURL, fc.LLM.BaseURL)
	setStr(&cfg.LLMModel, fc.LLM.Model)
	setStr(&cfg.LLMAPIKey, fc.LLM.APIKey)
	setStr(&cfg.BraveAPIKey, fc.Engines.Brave.APIKey)
	setStr(&cfg.TavilyAPIKey, fc.Engines.Tavily.APIKey)
	if fc.Engines.Brave.Enabled != nil {
		cfg.BraveEnabled = *fc.Engines.Brave.Enabled
	}
	if fc.Engines.Tavily.Enabled != nil {
		cfg.TavilyEnabled = *fc.Engines.Tavily.Enabled
	}
	if fc.Engines.DuckDuckGo.Enabled != nil {
		cfg.DuckDuckGo = *fc.Engines.DuckDuckGo.Enabled
	}
	if fc.Engines.MaxResults > 0 {
		cfg.EngineMaxResults = fc.Engines.MaxResults
	}
	if fc.Engines.Timeout > 0 {
		cfg.EngineTimeout = fc.Engines.Timeout
	}
	setStr(&cfg.UserAgent, fc.Scrape.UserAgent)
	if fc.Scrape.MaxConcurrent > 0 {
		cfg.MaxConcurrentFetch = fc.Scrape.MaxConcurrent
	}
	if fc.Scrape.MaxContentSize > 0 {
		cfg.MaxContentSize = fc.Scrape.MaxContentSize
	}
	if fc.Scrape.Timeout > 0 {
		cfg.ScrapeTimeout = fc.Scrape.Timeout
	}
	if fc.Scrape.RateLimitInterval > 0 {
		cfg.RateLimitInterval = fc.Scrape.RateLimitInterval
	}
	setStr(&cfg.CacheDir, fc.Cache.Dir)
	if fc.Cache.TTL > 0 {
		cfg.CacheTTL = fc.Cache.TTL
	}
	if fc.Cache.MaxEntries > 0 {
		cfg.CacheMaxEntries = fc.Cache.MaxEntries
	}
	if fc.Research.MaxSources > 0 {
		cfg.MaxSources = fc.Research.MaxSources
	}
	setStr(&cfg.CitationStyle, fc.Research.CitationStyle)
	if fc.Research.Continuous {
		cfg.Continuous = true
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ApplyEnv overrides cfg fields from environment variables when set. Env wins
// over file config; the CLI applies flags afterwards so flags stay highest.
func ApplyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setStr(&cfg.LLMModel, "LLM_MODEL")
	setStr(&cfg.LLMAPIKey, "LLM_API_KEY")
	setStr(&cfg.BraveAPIKey, "BRAVE_API_KEY")
	setStr(&cfg.TavilyAPIKey, "TAVILY_API_KEY")
	setStr(&cfg.CacheDir, "CACHE_DIR")
	setStr(&cfg.UserAgent, "USER_AGENT")
	setStr(&cfg.CitationStyle, "CITATION_STYLE")

	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	setInt(&cfg.EngineMaxResults, "ENGINE_MAX_RESULTS")
	setInt(&cfg.MaxConcurrentFetch, "MAX_CONCURRENT_SCRAPES")
	setInt(&cfg.CacheMaxEntries, "CACHE_MAX_ENTRIES")
	setInt(&cfg.MaxSources, "MAX_SOURCES")

	if v := os.Getenv("MAX_CONTENT_SIZE"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			cfg.MaxContentSize = n
		}
	}

	setDur := func(dst *time.Duration, key string) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
			return
		}
		// bare numbers mean seconds
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
	setDur(&cfg.EngineTimeout, "ENGINE_TIMEOUT")
	setDur(&cfg.ScrapeTimeout, "SCRAPE_TIMEOUT")
	setDur(&cfg.RateLimitInterval, "RATE_LIMIT_INTERVAL")
	setDur(&cfg.CacheTTL, "CACHE_TTL_SECONDS")

	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.BraveEnabled, "BRAVE_ENABLED")
	setBool(&cfg.TavilyEnabled, "TAVILY_ENABLED")
	setBool(&cfg.DuckDuckGo, "DUCKDUCKGO_ENABLED")
	setBool(&cfg.Continuous, "CONTINUOUS_MODE")
	setBool(&cfg.Verbose, "VERBOSE")
}

// Validate checks for settings no run can proceed without.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llm model is required (set LLM_MODEL or llm.model)")
	}
	if cfg.MaxSources <= 0 {
		return errors.New("config: max sources must be positive")
	}
	if cfg.CacheTTL <= 0 || cfg.CacheMaxEntries <= 0 {
		return errors.New("config: cache ttl and max entries must be positive")
	}
	if !cfg.DuckDuckGo && cfg.BraveAPIKey == "" && cfg.TavilyAPIKey == "" {
		return errors.New("config: no search engine available")
	}
	return nil
}
