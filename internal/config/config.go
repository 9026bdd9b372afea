// Package config loads process configuration the way the teacher's
// config package does: environment variables with sensible defaults via
// getEnv/getEnvInt-style helpers, preferring a project-specific alias over
// a generic legacy name. A YAML overlay supplies the handful of settings
// that are naturally structured rather than scalar — the static
// {http, ws} base URL table, default timeouts, and CORS defaults — with
// environment variables always taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// URLs is the static base-URL table a deployment binds once at startup
// (spec.md §6), consumed by the URL builder for url.self() / runtime.
// URLFor.
type URLs struct {
	HTTP string `yaml:"http"`
	WS   string `yaml:"ws"`
}

// Defaults holds the project-level fallbacks that individual route/queue
// Config blocks override.
type Defaults struct {
	HTTPTimeoutSeconds  int  `yaml:"http_timeout_seconds"`
	QueueTimeoutSeconds int  `yaml:"queue_timeout_seconds"`
	CORSEnabled         bool `yaml:"cors_enabled"`
}

// Overlay is the optional project-level YAML file.
type Overlay struct {
	URLs     URLs     `yaml:"urls"`
	Defaults Defaults `yaml:"defaults"`
}

// Config is the fully-resolved process configuration.
type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseKind string // "postgres" or "sqlite"
	RedisAddr    string
	S3Endpoint   string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string

	URLs     URLs
	Defaults Defaults
}

// Load reads an optional YAML overlay from path (skipped if path is
// empty or the file does not exist), then applies environment variable
// overrides, mirroring the teacher's alias-over-legacy precedence
// (GOYAIS_HUB_PORT over PORT, generalised here to EVENTGATE_* over the
// bare name).
func Load(path string) (*Config, error) {
	overlay, err := loadOverlay(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnvInt("PORT", "EVENTGATE_PORT", 3000),
		DatabaseURL:  getEnv("DATABASE_URL", "EVENTGATE_DATABASE_URL", "file::memory:?cache=shared"),
		DatabaseKind: getEnv("DATABASE_KIND", "EVENTGATE_DATABASE_KIND", "sqlite"),
		RedisAddr:    getEnv("REDIS_ADDR", "EVENTGATE_REDIS_ADDR", "127.0.0.1:6379"),
		S3Endpoint:   getEnv("S3_ENDPOINT", "EVENTGATE_S3_ENDPOINT", "127.0.0.1:9000"),
		S3Bucket:     getEnv("S3_BUCKET", "EVENTGATE_S3_BUCKET", "eventgate-dead-letters"),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", "EVENTGATE_S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", "EVENTGATE_S3_SECRET_KEY", ""),
		URLs:         overlay.URLs,
		Defaults:     overlay.Defaults,
	}

	if cfg.Defaults.HTTPTimeoutSeconds == 0 {
		cfg.Defaults.HTTPTimeoutSeconds = 30
	}
	if cfg.Defaults.QueueTimeoutSeconds == 0 {
		cfg.Defaults.QueueTimeoutSeconds = 30
	}

	return cfg, nil
}

func loadOverlay(path string) (Overlay, error) {
	var overlay Overlay
	if path == "" {
		return overlay, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overlay, nil
		}
		return overlay, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return overlay, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return overlay, nil
}

// getEnv reads alias first, then legacy, then falls back to def.
func getEnv(legacy, alias, def string) string {
	if v := os.Getenv(alias); v != "" {
		return v
	}
	if v := os.Getenv(legacy); v != "" {
		return v
	}
	return def
}

func getEnvInt(legacy, alias string, def int) int {
	raw := getEnv(legacy, alias, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
