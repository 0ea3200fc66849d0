// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package config loads and validates Datagate configuration.
//
// Configuration is layered: struct defaults first, then an optional YAML
// file, then environment variables (highest priority). Environment variable
// names map onto nested config paths, e.g. TSDB_URL -> tsdb.url.
package config

import "time"

// Config is the root configuration for the Datagate service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	TSDB     TSDBConfig     `koanf:"tsdb"`
	Auth     AuthConfig     `koanf:"auth"`
	Export   ExportConfig   `koanf:"export"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"`        // requests per window per IP, 0 disables
	RateLimitWindow time.Duration `koanf:"rate_limit_window"` // sliding window for RateLimit
}

// DatabaseConfig holds the embedded permissions database settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// TSDBConfig holds the upstream time-series store connection settings.
type TSDBConfig struct {
	URL      string        `koanf:"url"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Timeout  time.Duration `koanf:"timeout"`

	// Circuit breaker settings for upstream calls.
	BreakerEnabled     bool          `koanf:"breaker_enabled"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// AuthConfig holds identity-provider and authorization settings.
type AuthConfig struct {
	JWTSecret   string `koanf:"jwt_secret"`
	Issuer      string `koanf:"issuer"`
	GroupsClaim string `koanf:"groups_claim"`

	// BypassGroup members skip all dataset and app access checks.
	BypassGroup string `koanf:"bypass_group"`

	// LoginRatePerMinute throttles credential-exchange attempts per IP.
	LoginRatePerMinute int `koanf:"login_rate_per_minute"`
	LoginBurst         int `koanf:"login_burst"`
}

// ExportConfig holds TSV export settings.
type ExportConfig struct {
	// WindowSeconds is the fixed width of each export time window.
	WindowSeconds int `koanf:"window_seconds"`

	// OnWindowError controls behavior when a single window's upstream
	// query fails: "continue" skips the window, "abort" stops the export.
	OnWindowError string `koanf:"on_window_error"`

	// Timezone interprets non-epoch time bounds. Empty means server local.
	Timezone string `koanf:"timezone"`

	// SearchLimit caps results returned by dataset and app searches.
	SearchLimit int `koanf:"search_limit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. These are applied
// first and then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming exports are long-lived; rely on client cancellation
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       300,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/datagate.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		TSDB: TSDBConfig{
			URL:                "",
			Timeout:            60 * time.Second,
			BreakerEnabled:     true,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret:          "",
			Issuer:             "datagate",
			GroupsClaim:        "groups",
			BypassGroup:        "datagate_admins",
			LoginRatePerMinute: 10,
			LoginBurst:         5,
		},
		Export: ExportConfig{
			WindowSeconds: 1800,
			OnWindowError: "continue",
			Timezone:      "",
			SearchLimit:   9999,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
