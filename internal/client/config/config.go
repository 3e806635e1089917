package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/flagx"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "MACRO"

// Config holds runtime settings for the Macrometric CLI.
type Config struct {
	ServerURL           string        `envconfig:"SERVER_URL"`
	DatabasePath        string        `envconfig:"DATABASE_PATH"`
	OnlineCheckInterval time.Duration `envconfig:"ONLINE_CHECK_INTERVAL"`
	HTTPTimeout         time.Duration `envconfig:"HTTP_TIMEOUT"`
	SearchDebounce      time.Duration `envconfig:"SEARCH_DEBOUNCE"`
	SearchCacheTTL      time.Duration `envconfig:"SEARCH_CACHE_TTL"`
	SearchLimit         int           `envconfig:"SEARCH_LIMIT"`
	LogLevel            string        `envconfig:"LOG_LEVEL"`
	HTTPDebug           bool          `envconfig:"HTTP_DEBUG"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.DatabasePath = "macrometric.db"
	c.OnlineCheckInterval = 30 * time.Second
	c.HTTPTimeout = 10 * time.Second
	c.SearchDebounce = 300 * time.Millisecond
	c.SearchCacheTTL = 5 * time.Minute
	c.SearchLimit = 10
	c.LogLevel = "info"
	c.HTTPDebug = false
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server url %q: want http(s)://host[:port]", c.ServerURL)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is empty")
	}
	for name, d := range map[string]time.Duration{
		"online check interval": c.OnlineCheckInterval,
		"http timeout":          c.HTTPTimeout,
		"search cache ttl":      c.SearchCacheTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SearchDebounce < 0 {
		return fmt.Errorf("search debounce must not be negative, got %s", c.SearchDebounce)
	}
	if c.SearchLimit < 1 || c.SearchLimit > 50 {
		return fmt.Errorf("search limit must be within 1..50, got %d", c.SearchLimit)
	}
	return nil
}

// Load constructs a Config, applies defaults, then overlays values from the
// JSON file named by -c/-config, MACRO_* environment variables and
// command-line flags. Later sources take precedence over earlier ones.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, flagx.ConfigPath(args)); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
