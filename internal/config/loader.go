package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envFiles are tried in order; the first that exists wins.
var envFiles = []string{".env", "../.env", "../../.env"}

// keys lists every koanf key that may be set from the environment, e.g.
// DATABASE_URL -> database_url.
var keys = map[string]bool{
	"port":                   true,
	"database_url":           true,
	"data_path":              true,
	"log_queries":            true,
	"jwt_secret":             true,
	"gin_mode":               true,
	"log_level":              true,
	"log_pretty":             true,
	"redis_addr":             true,
	"redis_password":         true,
	"task_queue":             true,
	"worker_concurrency":     true,
	"qualification_blocking": true,
	"max_batch_size":         true,
	"pattern_ttl":            true,
	"pattern_window_months":  true,
	"pattern_min_frequency":  true,
	"pattern_retention":      true,
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CONFIG_FILE is set
//  3. env, after .env files have been loaded into the process environment
func Load(_ context.Context) (*Config, error) {
	loadDotEnv()

	k := koanf.New(".")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if !keys[key] {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}
