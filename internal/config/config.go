// Package config defines service configuration and its loading rules.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Store drivers accepted by StoreDriver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects json or console output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory evaluation queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the idempotency cache of event IDs.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreDriver selects memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// DatabaseDSN is the gorm DSN for sqlite or postgres.
	DatabaseDSN string `koanf:"database_dsn"`

	// RedisURL enables the report cache when set, e.g. redis://localhost:6379/0.
	RedisURL string `koanf:"redis_url"`

	// ReportCacheTTLSeconds bounds how long a cached report lives.
	ReportCacheTTLSeconds int `koanf:"report_cache_ttl_seconds"`

	// CalibrationThreshold flags an assessment whose ICC falls below it.
	CalibrationThreshold float64 `koanf:"calibration_threshold"`

	// DivergenceThreshold flags a rater whose mean absolute deviation exceeds it.
	DivergenceThreshold float64 `koanf:"divergence_threshold"`

	// MaxScoreAbs rejects submitted scores whose magnitude exceeds it.
	MaxScoreAbs float64 `koanf:"max_score_abs"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "json",
		Addr:                  ":9080",
		EventQueueSize:        10_000,
		WorkerCount:           runtime.NumCPU(),
		DedupeSize:            50_000,
		StoreDriver:           DriverMemory,
		ReportCacheTTLSeconds: 300,
		CalibrationThreshold:  0.5,
		DivergenceThreshold:   1.0,
		MaxScoreAbs:           1000,
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate(_ context.Context) error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("%w: database_dsn is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.MaxScoreAbs <= 0 {
		return fmt.Errorf("%w: max_score_abs must be positive", ErrInvalidConfig)
	}
	return nil
}
