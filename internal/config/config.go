// Package config loads cereal's configuration from environment
// variables. There is no config file; a missing required value at
// startup is fatal, not retryable.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the core reads. After Load returns
// successfully, every field is populated — callers never need to
// nil-check or re-validate.
type Config struct {
	Database       DatabaseConfig
	ObjectStore    ObjectStoreConfig
	Pushover       PushoverConfig
	Email          EmailConfig
	Listen         ListenConfig
	LogLevel       string
	IngestPeriod   time.Duration
	DeliveryPeriod time.Duration
}

// DatabaseConfig configures the relational store connection pool.
type DatabaseConfig struct {
	URL      string
	PoolSize int32
}

// ObjectStoreConfig configures the S3-compatible object store, including
// the separate bucket used to list raw RFC-5322 messages for
// Patreon-case email-ingest providers.
type ObjectStoreConfig struct {
	Key               string
	Secret            string
	Endpoint          string
	Bucket            string
	EmailIngestBucket string
}

// PushoverConfig configures the push-message notification adapter.
type PushoverConfig struct {
	AppToken string
}

// EmailConfig configures the attachment-email notification adapter.
type EmailConfig struct {
	APIKey   string
	Endpoint string
	From     string
}

// ListenConfig configures the (out-of-scope) API server's bind address.
type ListenConfig struct {
	Addr string
}

const (
	defaultPoolSize       = 30
	defaultIngestPeriod   = 5 * time.Minute
	defaultDeliveryPeriod = 30 * time.Second
	defaultListenAddr     = ":8080"
)

// loader looks up environment variables, collecting the name of every
// missing required variable rather than failing on the first miss, so
// startup reports every missing value at once.
type loader struct {
	missing []string
}

func (l *loader) required(name string) string {
	v := os.Getenv(name)
	if v == "" {
		l.missing = append(l.missing, name)
	}
	return v
}

func (l *loader) optional(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// Load reads configuration from the environment, applies defaults for
// optional values, and validates the result. Missing required values
// are reported together in a single error, fatal at startup.
func Load() (*Config, error) {
	l := &loader{}

	cfg := &Config{
		Database: DatabaseConfig{
			URL: l.required("CEREAL_DATABASE_URL"),
		},
		ObjectStore: ObjectStoreConfig{
			Key:               l.required("CEREAL_SPACES_KEY"),
			Secret:            l.required("CEREAL_SPACES_SECRET"),
			Endpoint:          l.required("CEREAL_SPACES_ENDPOINT"),
			Bucket:            l.required("CEREAL_SPACES_NAME"),
			EmailIngestBucket: l.required("CEREAL_EMAIL_INGEST_BUCKET"),
		},
		Pushover: PushoverConfig{
			AppToken: l.required("CEREAL_PUSHOVER_TOKEN"),
		},
		Email: EmailConfig{
			APIKey:   l.required("CEREAL_EMAIL_API_KEY"),
			Endpoint: l.required("CEREAL_EMAIL_API_ENDPOINT"),
			From:     l.required("CEREAL_EMAIL_FROM"),
		},
		Listen: ListenConfig{
			Addr: l.optional("CEREAL_LISTEN_ADDR", defaultListenAddr),
		},
		LogLevel: l.optional("CEREAL_LOG_LEVEL", "info"),
	}

	if len(l.missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %v", l.missing)
	}

	cfg.Database.PoolSize = defaultPoolSize
	if raw := os.Getenv("CEREAL_DATABASE_POOL_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("config: CEREAL_DATABASE_POOL_SIZE: %w", err)
		}
		cfg.Database.PoolSize = int32(n)
	}

	cfg.IngestPeriod = defaultIngestPeriod
	if raw := os.Getenv("CEREAL_INGEST_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("config: CEREAL_INGEST_INTERVAL: %w", err)
		}
		cfg.IngestPeriod = d
	}

	cfg.DeliveryPeriod = defaultDeliveryPeriod
	if raw := os.Getenv("CEREAL_DELIVERY_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("config: CEREAL_DELIVERY_INTERVAL: %w", err)
		}
		cfg.DeliveryPeriod = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent. It
// runs after defaults are applied, so it can assume every field is
// populated.
func (c *Config) Validate() error {
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("database pool size %d must be >= 1", c.Database.PoolSize)
	}
	if c.IngestPeriod <= 0 {
		return fmt.Errorf("ingest period must be positive")
	}
	if c.DeliveryPeriod <= 0 {
		return fmt.Errorf("delivery period must be positive")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel converts the CEREAL_LOG_LEVEL value to a slog.Level.
// Supported values: debug, info, warn, error (case-insensitive; empty
// means info).
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
}
