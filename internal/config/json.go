package config

import (
	"encoding/json"
	"os"
	"time"

	"bookfeed/internal/flagx"
	"bookfeed/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept either strings like "2s" or integer nanoseconds via timex.Duration.
type JsonConfig struct {
	NodeAPIURL      string         `json:"node_api_url"`
	NodeJWT         string         `json:"node_jwt"`
	DatabaseDSN     string         `json:"database_dsn"`
	PollInterval    timex.Duration `json:"poll_interval"`
	PollBatchSize   int            `json:"poll_batch_size"`
	ChunkSize       int            `json:"chunk_size"`
	Compression     *string        `json:"compression"`
	ConfirmInterval timex.Duration `json:"confirm_interval"`
	ConfirmAttempts int            `json:"confirm_attempts"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
	S3AccessKey     string         `json:"s3_access_key"`
	S3SecretKey     string         `json:"s3_secret_key"`
	S3Bucket        string         `json:"s3_bucket"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. Absent file means no overlay; read or unmarshal errors
// panic, matching the fail-fast startup path.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.NodeAPIURL != "" {
		cfg.NodeAPIURL = jc.NodeAPIURL
	}
	if jc.NodeJWT != "" {
		cfg.NodeJWT = jc.NodeJWT
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.PollInterval.Duration > 0 {
		cfg.PollInterval = time.Duration(jc.PollInterval.Duration)
	}
	if jc.PollBatchSize > 0 {
		cfg.PollBatchSize = jc.PollBatchSize
	}
	if jc.ChunkSize > 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.Compression != nil {
		cfg.Compression = *jc.Compression
	}
	if jc.ConfirmInterval.Duration > 0 {
		cfg.ConfirmInterval = time.Duration(jc.ConfirmInterval.Duration)
	}
	if jc.ConfirmAttempts > 0 {
		cfg.ConfirmAttempts = jc.ConfirmAttempts
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3BaseEndpoint != "" {
		cfg.S3BaseEndpoint = jc.S3BaseEndpoint
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
}
