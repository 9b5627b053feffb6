package meta

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"uwhoisd/internal/cache"
	"uwhoisd/internal/log"
	"uwhoisd/internal/whois"
)

// ServerConfig is the top-level block for the proxy itself: its listener, timeouts, and the
// response splicing policy.
type ServerConfig struct {
	Iface           string        `yaml:"iface"`
	Port            int           `yaml:"port"`
	Suffix          string        `yaml:"suffix"`
	RegistryWhois   bool          `yaml:"registry_whois"`
	PageFeed        bool          `yaml:"page_feed"`
	Conservative    []string      `yaml:"conservative"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// CacheConfig is a top-level block for response cache configuration.
type CacheConfig struct {
	Type string `yaml:"type"`
	// MaxSize bounds the number of cached entries.
	MaxSize int `yaml:"max_size"`
	// MaxAge is the entry lifetime, in seconds.
	MaxAge int `yaml:"max_age"`
	Redis  *struct {
		Address   string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		Database  int           `yaml:"db"`
		KeyPrefix string        `yaml:"key_prefix"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"redis"`
}

// RateLimitConfig is a top-level block for per-client rate limiting.
type RateLimitConfig struct {
	// Rate is the sustained number of queries per second allowed per client IP.
	Rate float64 `yaml:"rate"`
	// Burst is the number of queries a client may issue back to back.
	Burst int `yaml:"burst"`
}

// ApplicationConfig is a top-level block for application-level meta configuration.
type ApplicationConfig struct {
	SentryDSN string `yaml:"sentry_dsn"`
}

// MetricsConfig is a top-level block for metrics configuration.
type MetricsConfig struct {
	Statsd *struct {
		Address    string  `yaml:"addr"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"statsd"`
	Prometheus *struct {
		Address string `yaml:"addr"`
	} `yaml:"prometheus"`
}

// IncludeConfig names additional configuration fragments.
type IncludeConfig struct {
	// Path is a glob, relative to the including file's directory.
	Path string `yaml:"path"`
}

// Config describes all application configuration options.
type Config struct {
	Server            *ServerConfig      `yaml:"uwhoisd"`
	Overrides         map[string]string  `yaml:"overrides"`
	Prefixes          map[string]string  `yaml:"prefixes"`
	RecursionPatterns map[string]string  `yaml:"recursion_patterns"`
	Cache             *CacheConfig       `yaml:"cache"`
	RateLimit         *RateLimitConfig   `yaml:"rate_limit"`
	Application       *ApplicationConfig `yaml:"application"`
	Metrics           *MetricsConfig     `yaml:"metrics"`
	Include           *IncludeConfig     `yaml:"include"`

	// Compiled by validate.
	recursionPatterns map[string]*regexp.Regexp
}

// defaultConfig is the configuration in effect before any file is read.
func defaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Iface:           "0.0.0.0",
			Port:            4343,
			Suffix:          "whois-servers.net",
			RegistryWhois:   false,
			PageFeed:        true,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			UpstreamTimeout: 5 * time.Second,
			ConnectTimeout:  5 * time.Second,
		},
		Overrides:         map[string]string{},
		Prefixes:          map[string]string{},
		RecursionPatterns: map[string]string{},
		Cache: &CacheConfig{
			Type:    cache.NullBackend,
			MaxSize: cache.DefaultMaxSize,
			MaxAge:  int(cache.DefaultMaxAge / time.Second),
		},
	}
}

// ParseConfig parses a Config struct instance from a file specified as a path on disk, layered
// over the defaults. If the file names an include glob, the matching fragments are read in lexical
// order after it; later fragments win per key.
func ParseConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := cfg.decodeFile(path); err != nil {
		return nil, err
	}

	if cfg.Include != nil && cfg.Include.Path != "" {
		pattern := cfg.Include.Path
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(filepath.Dir(path), pattern)
		}

		fragments, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("config: invalid include path: path=%s err=%v", cfg.Include.Path, err)
		}

		sort.Strings(fragments)

		for _, fragment := range fragments {
			if err := cfg.decodeFile(fragment); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decodeFile decodes a YAML document on top of the current configuration. Keys absent from the
// document keep their current values and mapping sections are merged key by key.
func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: error reading config: path=%s err=%v", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: error parsing config: path=%s err=%v", path, err)
	}

	return nil
}

// validate the contents of the configuration. Returns an error if validation failed; nil otherwise.
func (c *Config) validate() error {
	/* Server */

	if c.Server == nil {
		return fmt.Errorf("config: missing top-level uwhoisd config key")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: listening port out of range: port=%d", c.Server.Port)
	}

	if c.Server.Suffix == "" {
		return fmt.Errorf("config: missing whois server suffix")
	}

	timeouts := map[string]time.Duration{
		"read_timeout":     c.Server.ReadTimeout,
		"write_timeout":    c.Server.WriteTimeout,
		"upstream_timeout": c.Server.UpstreamTimeout,
		"connect_timeout":  c.Server.ConnectTimeout,
	}
	for name, timeout := range timeouts {
		if timeout <= 0 {
			return fmt.Errorf("config: timeout must be positive: key=%s value=%v", name, timeout)
		}
	}

	for _, zone := range c.Server.Conservative {
		if zone == "" {
			return fmt.Errorf("config: empty zone in conservative list")
		}
	}

	/* Routing */

	// Override ports are deliberately not checked here; a malformed port fails the queries
	// routed to it.
	c.recursionPatterns = make(map[string]*regexp.Regexp, len(c.RecursionPatterns))
	for zone, pattern := range c.RecursionPatterns {
		re, err := whois.CompileRecursionPattern(pattern)
		if err != nil {
			return errors.WithMessagef(err, "config: invalid recursion pattern: zone=%s", zone)
		}

		c.recursionPatterns[zone] = re
	}

	/* Cache */

	if c.Cache == nil {
		return fmt.Errorf("config: missing top-level cache config key")
	}

	if !cache.IsKnownBackend(c.Cache.Type) {
		return &cache.UnknownCacheError{Name: c.Cache.Type}
	}

	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("config: cache max_size must be positive: max_size=%d", c.Cache.MaxSize)
	}

	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("config: cache max_age must be positive: max_age=%d", c.Cache.MaxAge)
	}

	if c.Cache.Type == "redis" && (c.Cache.Redis == nil || c.Cache.Redis.Address == "") {
		return fmt.Errorf("config: missing redis cache address")
	}

	/* Rate limiting */

	// Users can omit the rate_limit block entirely to disable rate limiting.
	if c.RateLimit != nil {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("config: rate limit must be positive: rate=%v", c.RateLimit.Rate)
		}

		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("config: rate limit burst must be positive: burst=%d", c.RateLimit.Burst)
		}
	}

	/* Metrics */

	// Users can omit the metrics block entirely to disable metrics reporting.
	if c.Metrics != nil && c.Metrics.Statsd != nil {
		if c.Metrics.Statsd.Address == "" {
			return fmt.Errorf("config: missing metrics statsd address")
		}

		if c.Metrics.Statsd.SampleRate < 0 || c.Metrics.Statsd.SampleRate > 1 {
			return fmt.Errorf("config: statsd sample rate must be in range [0.0, 1.0]")
		}
	}

	if c.Metrics != nil && c.Metrics.Prometheus != nil && c.Metrics.Prometheus.Address == "" {
		return fmt.Errorf("config: missing metrics prometheus address")
	}

	return nil
}

// ListenAddress is the host:port on which the proxy accepts client connections.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Iface, strconv.Itoa(c.Server.Port))
}

// Routing builds the zone routing table described by the configuration.
func (c *Config) Routing() *whois.RoutingTable {
	return &whois.RoutingTable{
		Suffix:            c.Server.Suffix,
		Overrides:         c.Overrides,
		Prefixes:          c.Prefixes,
		RecursionPatterns: c.recursionPatterns,
		Conservative:      c.Server.Conservative,
	}
}

// CacheOpts translates the cache block into backend options.
func (c *Config) CacheOpts(logger log.Logger) cache.Opts {
	opts := cache.Opts{
		Type:    c.Cache.Type,
		MaxSize: c.Cache.MaxSize,
		MaxAge:  time.Duration(c.Cache.MaxAge) * time.Second,
		Logger:  logger,
	}

	if c.Cache.Redis != nil {
		opts.Redis = cache.RedisOpts{
			Address:   c.Cache.Redis.Address,
			Password:  c.Cache.Redis.Password,
			Database:  c.Cache.Redis.Database,
			KeyPrefix: c.Cache.Redis.KeyPrefix,
			Timeout:   c.Cache.Redis.Timeout,
		}
	}

	return opts
}
