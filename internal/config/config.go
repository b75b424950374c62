// Package config assembles the pipeline's typed configuration once at
// startup: defaults, then YAML file, then environment variable overrides.
// No component reads os.Getenv after construction.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration, matching spec §6's table.
type Config struct {
	StreamKey           string        `yaml:"stream_key"`
	StreamConsumerGroup string        `yaml:"stream_consumer_group"`
	StreamStartFrom     string        `yaml:"stream_start_from"` // "beginning" or "end"
	NumWorkers          int           `yaml:"num_workers"`
	BatchSize           int           `yaml:"batch_size"`
	MaxBatchWait        time.Duration `yaml:"max_batch_wait_seconds"`
	MaxRetries          int           `yaml:"max_retries"`
	StagingDir          string        `yaml:"staging_dir"`
	EnrichmentMode      string        `yaml:"enrichment_mode"` // "lite" or "full", "" defers to Environment
	Environment         string        `yaml:"environment"`
	RedisURL            string        `yaml:"redis_url"`
	DatabaseURL         string        `yaml:"database_url"`
	NATSURL             string        `yaml:"nats_url"`
	NATSSubject         string        `yaml:"nats_subject"`
	InferenceURL        string        `yaml:"enricher_inference_url"`

	// KafkaBrokers and KafkaTopic configure the optional search-index mirror:
	// the pipeline publishes each enriched record onto KafkaTopic for
	// downstream search indexing. The mirror is started only when both are set.
	KafkaBrokers string `yaml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_search_index_topic"`

	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	MetricsPort    int    `yaml:"metrics_port"`
}

// Default returns the configuration's zero-value-safe defaults, applied
// before the YAML file and environment overrides are layered on.
func Default() Config {
	return Config{
		StreamKey:           "tweets:stream",
		StreamConsumerGroup: "ingestion",
		StreamStartFrom:     "end",
		NumWorkers:          4,
		BatchSize:           100,
		MaxBatchWait:        60 * time.Second,
		MaxRetries:          3,
		StagingDir:          "./staging",
		EnrichmentMode:      "",
		Environment:         "development",
		RedisURL:            "redis://localhost:6379",
		DatabaseURL:         "",
		NATSURL:             "nats://localhost:4222",
		NATSSubject:         "tweets.raw",
		ServiceName:         "tweetpulse-ingest",
		ServiceVersion:      "0.1.0",
		MetricsPort:         0,
	}
}

// Load reads configPath (if non-empty and present) over the defaults, then
// applies environment variable overrides, then validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	i := func(env string, dst *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(env string, dst *time.Duration) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = time.Duration(n) * time.Second
			}
		}
	}

	str("STREAM_KEY", &cfg.StreamKey)
	str("STREAM_CONSUMER_GROUP", &cfg.StreamConsumerGroup)
	str("STREAM_START_FROM", &cfg.StreamStartFrom)
	i("NUM_WORKERS", &cfg.NumWorkers)
	i("BATCH_SIZE", &cfg.BatchSize)
	dur("MAX_BATCH_WAIT_SECONDS", &cfg.MaxBatchWait)
	i("MAX_RETRIES", &cfg.MaxRetries)
	str("STAGING_DIR", &cfg.StagingDir)
	str("ENRICHMENT_MODE", &cfg.EnrichmentMode)
	str("ENVIRONMENT", &cfg.Environment)
	str("REDIS_URL", &cfg.RedisURL)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("NATS_URL", &cfg.NATSURL)
	str("NATS_SUBJECT", &cfg.NATSSubject)
	str("ENRICHER_INFERENCE_URL", &cfg.InferenceURL)
	str("KAFKA_BROKERS", &cfg.KafkaBrokers)
	str("KAFKA_SEARCH_INDEX_TOPIC", &cfg.KafkaTopic)
	str("SERVICE_NAME", &cfg.ServiceName)
	str("SERVICE_VERSION", &cfg.ServiceVersion)
	i("METRICS_PORT", &cfg.MetricsPort)
}

// Validate checks the config for values that would make the pipeline
// unable to start, as opposed to values that merely pick a behavior.
func (c *Config) Validate() error {
	if c.StreamKey == "" {
		return fmt.Errorf("stream_key must not be empty")
	}
	if c.StreamConsumerGroup == "" {
		return fmt.Errorf("stream_consumer_group must not be empty")
	}
	if c.StreamStartFrom != "beginning" && c.StreamStartFrom != "end" {
		return fmt.Errorf("stream_start_from must be \"beginning\" or \"end\", got %q", c.StreamStartFrom)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be >= 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url must be configured")
	}
	return nil
}
