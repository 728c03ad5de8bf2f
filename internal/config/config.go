// Package config assembles runtime settings for the client. Sources are
// layered: defaults, then an optional JSON file, then command-line flags,
// with later sources overriding earlier ones.
package config

import (
	"time"

	"bookfeed/internal/chunker"
	"bookfeed/internal/compressx"
)

// Config holds runtime settings for the bookfeed client.
type Config struct {
	// NodeAPIURL and NodeJWT locate and authorize against the local node's
	// HTTP API.
	NodeAPIURL string
	NodeJWT    string

	// DatabaseDSN is the sqlite database location.
	DatabaseDSN string

	// PollInterval and PollBatchSize tune the per-group sync pollers.
	PollInterval  time.Duration
	PollBatchSize int

	// ChunkSize is the segment size for published files. Compression names
	// the algorithm applied to published payloads.
	ChunkSize   int
	Compression string

	// ConfirmInterval and ConfirmAttempts bound publish confirmation
	// polling.
	ConfirmInterval time.Duration
	ConfirmAttempts int

	// Object storage settings for book export. Export is disabled when the
	// bucket is empty.
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.NodeAPIURL = "http://127.0.0.1:8002"
	c.DatabaseDSN = "bookfeed.db"
	c.PollInterval = 2 * time.Second
	c.PollBatchSize = 100
	c.ChunkSize = chunker.DefaultChunkSize
	c.Compression = compressx.None
	c.ConfirmInterval = time.Second
	c.ConfirmAttempts = 30
	c.S3Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
