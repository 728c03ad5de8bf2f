package config

import (
	"flag"
	"os"
	"time"

	"bookfeed/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   node API base URL
//	-t string   node API bearer token
//	-d string   sqlite database path
//	-i int      poll interval in seconds
//	-z string   compression for published payloads ("", "gzip", "zstd")
//
// Args are filtered through flagx.FilterArgs so unrelated flags (such as
// -config) do not trip the flag set.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t", "-d", "-i", "-z"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.NodeAPIURL, "a", cfg.NodeAPIURL, "node API base URL")
	fs.StringVar(&cfg.NodeJWT, "t", cfg.NodeJWT, "node API bearer token")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "sqlite database path")
	pollInterval := fs.Int("i", int(cfg.PollInterval.Seconds()), "poll interval (in seconds)")
	fs.StringVar(&cfg.Compression, "z", cfg.Compression, "payload compression algorithm")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.PollInterval = time.Duration(*pollInterval) * time.Second
}
