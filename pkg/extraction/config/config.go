// Package config loads and defaults the service configuration. Structure
// and tuning live in YAML; credentials live in the environment only and
// never appear in a config file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Extraction modes.
const (
	// ModeRouted runs the local heuristic plus one routed extraction
	// that walks the provider fallback chain.
	ModeRouted = "routed"
	// ModeFanout runs the local heuristic plus one routed extraction
	// per activated provider, all concurrently.
	ModeFanout = "fanout"
)

// Config is the root of the YAML file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	Router    RouterConfig    `yaml:"router"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Extract   ExtractConfig   `yaml:"extract"`
	Batch     BatchConfig     `yaml:"batch"`
	Providers ProvidersConfig `yaml:"providers"`
}

// Load reads and defaults a config file. An empty path yields the
// defaults, so running without a file is always possible.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg.WithDefaults(), nil
}

// WithDefaults returns a copy with every section defaulted.
func (c Config) WithDefaults() Config {
	c.Log = c.Log.withDefaults()
	c.Cache = c.Cache.withDefaults()
	c.Router = c.Router.withDefaults()
	c.Aggregate = c.Aggregate.withDefaults()
	c.Extract = c.Extract.withDefaults()
	c.Batch = c.Batch.withDefaults()
	return c
}

// LogConfig controls the root logger.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
}

func (c LogConfig) withDefaults() LogConfig {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	if strings.TrimSpace(c.Format) == "" {
		c.Format = "console"
	}
	return c
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Enabled defaults to true when unset.
	Enabled    *bool `yaml:"enabled"`
	TTLSecs    int   `yaml:"ttl_secs"`
	MaxEntries int   `yaml:"max_entries"`
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.TTLSecs <= 0 {
		c.TTLSecs = 24 * 60 * 60
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 4096
	}
	return c
}

// IsEnabled resolves the tri-state flag; unset means enabled.
func (c CacheConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// TTL converts ttl_secs.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSecs) * time.Second }

// RouterConfig tunes the provider fallback chain.
type RouterConfig struct {
	// Strategy is cost, quality, speed or balanced.
	Strategy string `yaml:"strategy"`
	// MaxAttempts caps calls against one provider; only rate-limited
	// failures are retried in place.
	MaxAttempts        int     `yaml:"max_attempts"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs"`
	BackoffInitialMs   int     `yaml:"backoff_initial_ms"`
	BackoffMaxMs       int     `yaml:"backoff_max_ms"`
	BackoffJitterFrac  float64 `yaml:"backoff_jitter_frac"`
	// RateLimitRPS is a global limit across providers; <=0 disables it.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

func (c RouterConfig) withDefaults() RouterConfig {
	if strings.TrimSpace(c.Strategy) == "" {
		c.Strategy = "balanced"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RequestTimeoutSecs <= 0 {
		c.RequestTimeoutSecs = 30
	}
	if c.BackoffInitialMs <= 0 {
		c.BackoffInitialMs = 1000
	}
	if c.BackoffMaxMs <= 0 {
		c.BackoffMaxMs = 8000
	}
	if c.BackoffJitterFrac <= 0 {
		c.BackoffJitterFrac = 0.2
	}
	return c
}

// RequestTimeout converts request_timeout_secs.
func (c RouterConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// BackoffInitial converts backoff_initial_ms.
func (c RouterConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts backoff_max_ms.
func (c RouterConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// AggregateConfig tunes palette dedup.
type AggregateConfig struct {
	// DedupThreshold is the minimum CIEDE2000 distance between
	// surviving palette entries.
	DedupThreshold float64 `yaml:"dedup_threshold"`
	// DominantCount caps the dominant hex list.
	DominantCount int `yaml:"dominant_count"`
}

func (c AggregateConfig) withDefaults() AggregateConfig {
	if c.DedupThreshold <= 0 {
		c.DedupThreshold = 2.0
	}
	if c.DominantCount <= 0 {
		c.DominantCount = 3
	}
	return c
}

// ExtractConfig shapes individual requests.
type ExtractConfig struct {
	// Mode is routed or fanout.
	Mode string `yaml:"mode"`
	// DeadlineSecs bounds one request end to end; 0 means no deadline.
	DeadlineSecs int `yaml:"deadline_secs"`
	MaxColors    int `yaml:"max_colors"`
}

func (c ExtractConfig) withDefaults() ExtractConfig {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case ModeFanout:
		c.Mode = ModeFanout
	default:
		c.Mode = ModeRouted
	}
	if c.DeadlineSecs < 0 {
		c.DeadlineSecs = 0
	}
	if c.MaxColors <= 0 {
		c.MaxColors = 12
	}
	return c
}

// Deadline converts deadline_secs.
func (c ExtractConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineSecs) * time.Second
}

// BatchConfig bounds batch runs.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	return c
}

// ProvidersConfig activates and tunes the vision providers.
type ProvidersConfig struct {
	Gemini     AIProviderConfig `yaml:"gemini"`
	OpenAI     AIProviderConfig `yaml:"openai"`
	Anthropic  AIProviderConfig `yaml:"anthropic"`
	HTTPVision HTTPVisionConfig `yaml:"httpvision"`
}

// AIProviderConfig configures one hosted AI provider. The API key is
// never part of the file; see LoadKeys.
type AIProviderConfig struct {
	// Enabled is tri-state: unset activates the provider iff its key is
	// present in the environment; true requires the key; false disables.
	Enabled *bool  `yaml:"enabled"`
	Model   string `yaml:"model"`
	// BaseURL redirects API traffic, e.g. through a proxy.
	BaseURL string `yaml:"base_url"`
}

// Activated resolves the tri-state flag against key presence.
func (c AIProviderConfig) Activated(hasKey bool) bool {
	if c.Enabled == nil {
		return hasKey
	}
	return *c.Enabled
}

// HTTPVisionConfig configures a self-hosted vision endpoint.
type HTTPVisionConfig struct {
	// Enabled is tri-state: unset activates the endpoint iff base_url
	// is set. The bearer token is optional either way.
	Enabled *bool  `yaml:"enabled"`
	ID      string `yaml:"id"`
	BaseURL string `yaml:"base_url"`
	// CAPath points at a PEM bundle for private deployments.
	CAPath      string `yaml:"ca_path"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Activated resolves the tri-state flag against base_url presence.
func (c HTTPVisionConfig) Activated() bool {
	if c.Enabled == nil {
		return strings.TrimSpace(c.BaseURL) != ""
	}
	return *c.Enabled
}

// Timeout converts timeout_secs; 0 keeps the client default.
func (c HTTPVisionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}
