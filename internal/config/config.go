package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/engagesite/internal/stepper"
)

// EnvCMSURL overrides the content API base URL from the config file.
const EnvCMSURL = "ENGAGESITE_CMS_URL"

// DefaultCMSURL is the local development origin of the content API.
const DefaultCMSURL = "http://localhost:3000"

// Config represents the engagesite configuration
type Config struct {
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Server      ServerConfig     `yaml:"server"`
	CMS         CMSConfig        `yaml:"cms"`
	Content     ContentConfig    `yaml:"content"`
	Stepper     StepperConfig    `yaml:"stepper"`
	Careers     CareersConfig    `yaml:"careers"`
	RateLimit   *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           int    `yaml:"port"`
	Host           string `yaml:"host"`
	Debug          bool   `yaml:"debug"`
	SectionTimeout string `yaml:"section_timeout,omitempty"` // Per-section CMS deadline during page render. Default: 3s
}

// CMSConfig describes the remote content API
type CMSConfig struct {
	URL     string            `yaml:"url,omitempty"`     // Base URL (env vars expanded). ENGAGESITE_CMS_URL wins
	Timeout string            `yaml:"timeout,omitempty"` // Request timeout (e.g., "10s"). Default: 10s
	Headers map[string]string `yaml:"headers,omitempty"` // Extra request headers (env vars expanded)
	Retry   *RetryConfig      `yaml:"retry,omitempty"`
	Circuit *CircuitConfig    `yaml:"circuit,omitempty"`
	Cache   *CacheConfig      `yaml:"cache,omitempty"`
}

// RetryConfig configures retry behavior for content API calls
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries,omitempty"` // Maximum retry attempts (default: 3)
	BaseDelay  string `yaml:"base_delay,omitempty"`  // Initial delay (e.g., "100ms"). Default: 100ms
	MaxDelay   string `yaml:"max_delay,omitempty"`   // Maximum delay (e.g., "5s"). Default: 5s
}

// CircuitConfig controls when a failing collection stops being requested
type CircuitConfig struct {
	Failures int    `yaml:"failures,omitempty"` // Transient failures within the window that pause a collection. Default: 5
	Window   string `yaml:"window,omitempty"`   // Failure counting window. Default: 1m
	Cooldown string `yaml:"cooldown,omitempty"` // Pause before a trial request. Default: 30s
}

// CacheConfig configures response caching
type CacheConfig struct {
	TTL      string `yaml:"ttl,omitempty"`      // Cache TTL (e.g., "5m"). Empty disables caching
	Strategy string `yaml:"strategy,omitempty"` // "simple" or "stale-while-revalidate". Default: "simple"
	Store    string `yaml:"store,omitempty"`    // "memory" or "sqlite". Default: "memory"
	Path     string `yaml:"path,omitempty"`     // SQLite file for the sqlite store
}

// ContentConfig locates the static content data
type ContentConfig struct {
	Dir   string `yaml:"dir,omitempty"`   // Override directory for the embedded YAML data
	Watch bool   `yaml:"watch,omitempty"` // Reload the override directory on change
}

// StepperConfig mirrors stepper.Config with YAML-friendly types
type StepperConfig struct {
	Breakpoint      float64 `yaml:"breakpoint,omitempty"`
	LargeBreakpoint float64 `yaml:"large_breakpoint,omitempty"`
	WideClearance   float64 `yaml:"wide_clearance,omitempty"`
	LargeClearance  float64 `yaml:"large_clearance,omitempty"`
	NarrowClearance float64 `yaml:"narrow_clearance,omitempty"`
	Debounce        string  `yaml:"debounce,omitempty"` // e.g. "250ms"
}

// CareersConfig controls the job listing
type CareersConfig struct {
	PageSize int `yaml:"page_size,omitempty"` // Jobs per page. Default: 6
}

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64  `yaml:"requests_per_second,omitempty"` // Default: 10
	Burst             int      `yaml:"burst,omitempty"`               // Default: 20
	MaxTrackedIPs     int      `yaml:"max_tracked_ips,omitempty"`     // LRU capacity. Default: 10000
	Idle              string   `yaml:"idle,omitempty"`                // Forget visitors quiet for this long. Default: 10m
	TrustedProxies    []string `yaml:"trusted_proxies,omitempty"`     // CIDRs whose X-Forwarded-For is believed. Default: loopback and private ranges
}

// GetURL returns the content API base URL: env override, then config, then default
func (c CMSConfig) GetURL() string {
	if v := os.Getenv(EnvCMSURL); v != "" {
		return v
	}
	if c.URL != "" {
		return os.ExpandEnv(c.URL)
	}
	return DefaultCMSURL
}

// GetHeaders returns request headers with environment variables expanded
func (c CMSConfig) GetHeaders() map[string]string {
	out := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

// GetTimeout returns the parsed timeout duration (default: 10s)
func (c CMSConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// GetRetryMaxRetries returns the max retries (default: 3, set to 0 to disable retries)
func (c CMSConfig) GetRetryMaxRetries() int {
	if c.Retry == nil || c.Retry.MaxRetries < 0 {
		return 3
	}
	return c.Retry.MaxRetries
}

// GetRetryBaseDelay returns the base delay (default: 100ms)
func (c CMSConfig) GetRetryBaseDelay() time.Duration {
	if c.Retry == nil {
		return 100 * time.Millisecond
	}
	return parseDuration(c.Retry.BaseDelay, 100*time.Millisecond)
}

// GetRetryMaxDelay returns the max delay (default: 5s)
func (c CMSConfig) GetRetryMaxDelay() time.Duration {
	if c.Retry == nil {
		return 5 * time.Second
	}
	return parseDuration(c.Retry.MaxDelay, 5*time.Second)
}

// GetCircuitFailures returns the failure threshold (default: 5)
func (c CMSConfig) GetCircuitFailures() int {
	if c.Circuit == nil || c.Circuit.Failures <= 0 {
		return 5
	}
	return c.Circuit.Failures
}

// GetCircuitWindow returns the failure counting window (default: 1m)
func (c CMSConfig) GetCircuitWindow() time.Duration {
	if c.Circuit == nil {
		return time.Minute
	}
	return parseDuration(c.Circuit.Window, time.Minute)
}

// GetCircuitCooldown returns how long a paused collection waits (default: 30s)
func (c CMSConfig) GetCircuitCooldown() time.Duration {
	if c.Circuit == nil {
		return 30 * time.Second
	}
	return parseDuration(c.Circuit.Cooldown, 30*time.Second)
}

// IsCacheEnabled returns true if response caching is enabled
func (c CMSConfig) IsCacheEnabled() bool {
	return c.Cache != nil && c.GetCacheTTL() > 0
}

// GetCacheTTL returns the cache TTL (0 if caching is disabled)
func (c CMSConfig) GetCacheTTL() time.Duration {
	if c.Cache == nil {
		return 0
	}
	return parseDuration(c.Cache.TTL, 0)
}

// GetCacheStrategy returns the cache strategy (default: "simple")
func (c CMSConfig) GetCacheStrategy() string {
	if c.Cache == nil || c.Cache.Strategy == "" {
		return "simple"
	}
	return c.Cache.Strategy
}

// GetCacheStore returns the cache store kind (default: "memory")
func (c CMSConfig) GetCacheStore() string {
	if c.Cache == nil || c.Cache.Store == "" {
		return "memory"
	}
	return c.Cache.Store
}

// GetCachePath returns the SQLite cache path
func (c CMSConfig) GetCachePath() string {
	if c.Cache == nil {
		return ""
	}
	return c.Cache.Path
}

// GetSectionTimeout returns the per-section render deadline (default: 3s)
func (s ServerConfig) GetSectionTimeout() time.Duration {
	return parseDuration(s.SectionTimeout, 3*time.Second)
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ToStepper converts to stepper.Config, keeping stepper defaults for unset fields
func (c StepperConfig) ToStepper() stepper.Config {
	d := stepper.DefaultConfig()
	out := stepper.Config{
		Breakpoint:      pick(c.Breakpoint, d.Breakpoint),
		LargeBreakpoint: pick(c.LargeBreakpoint, d.LargeBreakpoint),
		WideClearance:   pick(c.WideClearance, d.WideClearance),
		LargeClearance:  pick(c.LargeClearance, d.LargeClearance),
		NarrowClearance: pick(c.NarrowClearance, d.NarrowClearance),
		Debounce:        parseDuration(c.Debounce, d.Debounce),
	}
	return out
}

// GetPageSize returns the number of jobs per page (default: 6)
func (c CareersConfig) GetPageSize() int {
	if c.PageSize <= 0 {
		return 6
	}
	return c.PageSize
}

// GetRPS returns the rate limit in requests per second (default: 10)
func (c *RateLimitConfig) GetRPS() float64 {
	if c == nil || c.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RequestsPerSecond
}

// GetBurst returns the burst size (default: 20)
func (c *RateLimitConfig) GetBurst() int {
	if c == nil || c.Burst <= 0 {
		return 20
	}
	return c.Burst
}

// GetMaxTrackedIPs returns how many client IPs the limiter remembers (default: 10000)
func (c *RateLimitConfig) GetMaxTrackedIPs() int {
	if c == nil || c.MaxTrackedIPs <= 0 {
		return 10000
	}
	return c.MaxTrackedIPs
}

// GetIdle returns how long a quiet visitor is remembered (default: 10m)
func (c *RateLimitConfig) GetIdle() time.Duration {
	if c == nil {
		return 10 * time.Minute
	}
	return parseDuration(c.Idle, 10*time.Minute)
}

// defaultTrustedProxies are the ranges a reverse proxy in front of the site
// normally connects from.
var defaultTrustedProxies = []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"}

// GetTrustedProxies parses the trusted proxy ranges. A bare address is
// treated as a single-host range.
func (c *RateLimitConfig) GetTrustedProxies() ([]netip.Prefix, error) {
	raw := defaultTrustedProxies
	if c != nil && c.TrustedProxies != nil {
		raw = c.TrustedProxies
	}
	out := make([]netip.Prefix, 0, len(raw))
	for _, v := range raw {
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Validate reports configuration values that would misbehave at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.CMS.GetCacheStrategy() {
	case "simple", "stale-while-revalidate":
	default:
		errs = append(errs, fmt.Errorf("cms.cache.strategy %q: want simple or stale-while-revalidate", c.CMS.GetCacheStrategy()))
	}
	switch c.CMS.GetCacheStore() {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("cms.cache.store %q: want memory or sqlite", c.CMS.GetCacheStore()))
	}
	if c.CMS.Cache != nil && c.CMS.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.CMS.Cache.TTL); err != nil {
			errs = append(errs, fmt.Errorf("cms.cache.ttl: %w", err))
		}
	}
	if c.Stepper.Debounce != "" {
		if _, err := time.ParseDuration(c.Stepper.Debounce); err != nil {
			errs = append(errs, fmt.Errorf("stepper.debounce: %w", err))
		}
	}
	if _, err := c.RateLimit.GetTrustedProxies(); err != nil {
		errs = append(errs, fmt.Errorf("rate_limit: %w", err))
	}
	sc := c.Stepper.ToStepper()
	if sc.LargeBreakpoint < sc.Breakpoint {
		errs = append(errs, fmt.Errorf("stepper.large_breakpoint %.0f below breakpoint %.0f", sc.LargeBreakpoint, sc.Breakpoint))
	}
	return errors.Join(errs...)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title:       "Engage",
		Description: "AI customer engagement, from first hello to lasting loyalty",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Careers: CareersConfig{PageSize: 6},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadFromDir looks for engagesite.yaml, then engagesite.yml, in dir.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"engagesite.yaml", "engagesite.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return DefaultConfig(), nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func pick(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
