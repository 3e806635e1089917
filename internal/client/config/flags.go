package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/macrometric/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-i", "-t", "-l", "-limit", "-debug"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     base URL of the service
//	-d string     path of the local database
//	-i duration   online check interval
//	-t duration   HTTP request timeout
//	-l string     log level (debug, info, warn, error)
//	-limit int    number of search results requested
//	-debug        dump HTTP traffic to the log
//
// args are filtered with flagx.FilterArgs so flags owned by other components
// do not cause parse errors.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("macrometric", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the service")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.DurationVar(&cfg.OnlineCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.DurationVar(&cfg.HTTPTimeout, "t", cfg.HTTPTimeout, "HTTP request timeout")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.IntVar(&cfg.SearchLimit, "limit", cfg.SearchLimit, "number of search results")
	fs.BoolVar(&cfg.HTTPDebug, "debug", cfg.HTTPDebug, "dump HTTP traffic")

	return fs.Parse(flagx.FilterArgs(args, knownFlags))
}
