// Package config defines the service configuration and how it is loaded.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string `koanf:"port"`

	// DatabaseURL selects Postgres. When empty the service uses SQLite at DataPath.
	DatabaseURL string `koanf:"database_url"`
	DataPath    string `koanf:"data_path"`
	LogQueries  bool   `koanf:"log_queries"`

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string `koanf:"jwt_secret"`
	GinMode   string `koanf:"gin_mode"`

	LogLevel  string `koanf:"log_level"`
	LogPretty bool   `koanf:"log_pretty"`

	// RedisAddr enables the asynq task runner. Without it background tasks
	// run in-process.
	RedisAddr         string `koanf:"redis_addr"`
	RedisPassword     string `koanf:"redis_password"`
	TaskQueue         string `koanf:"task_queue"`
	WorkerConcurrency int    `koanf:"worker_concurrency"`

	// QualificationBlocking makes a division mismatch reject an assignment
	// instead of returning a warning.
	QualificationBlocking bool `koanf:"qualification_blocking"`
	MaxBatchSize          int  `koanf:"max_batch_size"`

	PatternTTL          time.Duration `koanf:"pattern_ttl"`
	PatternWindowMonths int           `koanf:"pattern_window_months"`
	PatternMinFrequency int           `koanf:"pattern_min_frequency"`
	PatternRetention    time.Duration `koanf:"pattern_retention"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Port:                  "8000",
		DataPath:              "referees.db",
		LogLevel:              "info",
		TaskQueue:             "default",
		WorkerConcurrency:     4,
		QualificationBlocking: true,
		MaxBatchSize:          100,
		PatternTTL:            24 * time.Hour,
		PatternWindowMonths:   6,
		PatternMinFrequency:   2,
		PatternRetention:      7 * 24 * time.Hour,
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// UsePostgres reports whether a Postgres DSN is configured.
func (c *Config) UsePostgres() bool { return c.DatabaseURL != "" }

// Validate checks value ranges. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimPrefix(c.Port, ":") == "":
		return fmt.Errorf("%w: port must not be empty", ErrInvalidConfig)
	case c.DatabaseURL == "" && c.DataPath == "":
		return fmt.Errorf("%w: one of database_url or data_path is required", ErrInvalidConfig)
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("%w: max_batch_size must be positive", ErrInvalidConfig)
	case c.PatternTTL <= 0:
		return fmt.Errorf("%w: pattern_ttl must be positive", ErrInvalidConfig)
	case c.PatternWindowMonths <= 0:
		return fmt.Errorf("%w: pattern_window_months must be positive", ErrInvalidConfig)
	case c.PatternMinFrequency < 1:
		return fmt.Errorf("%w: pattern_min_frequency must be at least 1", ErrInvalidConfig)
	case c.PatternRetention <= 0:
		return fmt.Errorf("%w: pattern_retention must be positive", ErrInvalidConfig)
	case c.RedisAddr != "" && c.TaskQueue == "":
		return fmt.Errorf("%w: task_queue is required with redis_addr", ErrInvalidConfig)
	case c.WorkerConcurrency <= 0:
		return fmt.Errorf("%w: worker_concurrency must be positive", ErrInvalidConfig)
	}
	switch c.GinMode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("%w: unknown gin_mode %q", ErrInvalidConfig, c.GinMode)
	}
	return nil
}
