package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/macrometric/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations use
// timex.Duration so they may be written as "300ms" or as integer
// nanoseconds. Absent keys leave the current value untouched.
type JsonConfig struct {
	ServerURL           string          `json:"server_url"`
	DatabasePath        string          `json:"database_path"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	HTTPTimeout         *timex.Duration `json:"http_timeout"`
	SearchDebounce      *timex.Duration `json:"search_debounce"`
	SearchCacheTTL      *timex.Duration `json:"search_cache_ttl"`
	SearchLimit         *int            `json:"search_limit"`
	LogLevel            string          `json:"log_level"`
	HTTPDebug           *bool           `json:"http_debug"`
}

// parseJSON overlays cfg with the file at path; an empty path is a no-op.
func parseJSON(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.HTTPTimeout != nil {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
	if jc.SearchDebounce != nil {
		cfg.SearchDebounce = jc.SearchDebounce.Duration
	}
	if jc.SearchCacheTTL != nil {
		cfg.SearchCacheTTL = jc.SearchCacheTTL.Duration
	}
	if jc.SearchLimit != nil {
		cfg.SearchLimit = *jc.SearchLimit
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	if jc.HTTPDebug != nil {
		cfg.HTTPDebug = *jc.HTTPDebug
	}
	return nil
}
