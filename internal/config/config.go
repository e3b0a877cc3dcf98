package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the configuration for the chat service and the ingest
// worker. Environment variables are parsed from the LOOM_SERVER_ prefix.
type Config struct {
	// Build target selects the high-level environment: local or cloud.
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override drivers.
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	QueueDriver string `envconfig:"QUEUE_DRIVER" default:"store"`

	// HTTP configuration.
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres (cloud target).
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite (local target).
	SQLitePath string `envconfig:"SQLITE_PATH" default:"loom.db"`

	// Embedding / search index configuration.
	EmbedProvider  string `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel     string `envconfig:"EMBED_MODEL" default:"nomic-embed-text"`
	SearchIndexURL string `envconfig:"SEARCH_INDEX_URL" default:"weaviate:8080"`

	// Fan-out transport.
	NATSURL          string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	PublishTimeoutMS int    `envconfig:"PUBLISH_TIMEOUT_MS" default:"2000"`

	// Ingestion worker.
	IngestBatchSize       int `envconfig:"INGEST_BATCH_SIZE" default:"50"`
	IngestPollIntervalMS  int `envconfig:"INGEST_POLL_INTERVAL_MS" default:"2000"`
	IngestRetryDelayMS    int `envconfig:"INGEST_RETRY_DELAY_MS" default:"5000"`
	IngestMaxRetries      int `envconfig:"INGEST_MAX_RETRIES" default:"3"`
	IngestVisibilityMS    int `envconfig:"INGEST_VISIBILITY_MS" default:"60000"`
	IngestUpsertTimeoutMS int `envconfig:"INGEST_UPSERT_TIMEOUT_MS" default:"5000"`

	// Counter update retry window (hard-error path).
	CounterRetryMaxElapsedMS int `envconfig:"COUNTER_RETRY_MAX_ELAPSED_MS" default:"10000"`

	// Health checking.
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"10"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to
// "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string
	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN required for postgres driver")
	}

	if c.QueueDriver == "" {
		c.QueueDriver = "store"
	}
	switch c.QueueDriver {
	case "store", "memory":
	default:
		return fmt.Errorf("unsupported QUEUE_DRIVER: %s", c.QueueDriver)
	}
	return nil
}

// New creates a Config by parsing environment variables with the
// LOOM_SERVER_ prefix, e.g. LOOM_SERVER_HTTP_PORT.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LOOM_SERVER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a config suitable for unit tests: sqlite store,
// in-memory queue, tight intervals.
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "sqlite",
		QueueDriver:               "memory",
		HTTPPort:                  8080,
		SQLitePath:                ":memory:",
		EmbedProvider:             "ollama",
		EmbedModel:                "nomic-embed-text",
		SearchIndexURL:            "localhost:8082",
		NATSURL:                   "nats://127.0.0.1:4222",
		PublishTimeoutMS:          100,
		IngestBatchSize:           10,
		IngestPollIntervalMS:      5,
		IngestRetryDelayMS:        5,
		IngestMaxRetries:          3,
		IngestVisibilityMS:        1000,
		IngestUpsertTimeoutMS:     1000,
		CounterRetryMaxElapsedMS:  100,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// PollInterval returns the worker poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.IngestPollIntervalMS) * time.Millisecond
}

// RetryDelay returns the post-failure backoff before the next poll.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.IngestRetryDelayMS) * time.Millisecond
}

// Visibility returns the durable queue lease window.
func (c *Config) Visibility() time.Duration {
	return time.Duration(c.IngestVisibilityMS) * time.Millisecond
}

// PublishTimeout returns the per-recipient publish deadline.
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMS) * time.Millisecond
}
