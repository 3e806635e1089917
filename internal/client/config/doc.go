// Package config loads runtime configuration for the Macrometric CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment variables prefixed with MACRO_ (MACRO_SERVER_URL,
//     MACRO_SEARCH_DEBOUNCE, ...). cmd/client loads a .env file first.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string     base URL of the service
//	-d string     local database path
//	-i duration   online status check interval
//	-t duration   HTTP request timeout
//	-l string     log level
//	-limit int    search result count
//	-debug        HTTP request tracing
//
// # JSON schema
//
// Durations are either strings like "300ms" or integer nanoseconds:
//
//	{
//	  "server_url": "https://api.example.com",
//	  "database_path": "/var/lib/macrometric/client.db",
//	  "online_check_interval": "30s",
//	  "http_timeout": "10s",
//	  "search_debounce": "300ms",
//	  "search_cache_ttl": "5m",
//	  "search_limit": 10,
//	  "log_level": "info",
//	  "http_debug": false
//	}
package config
