// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/datagate/config.yaml",
	"/etc/datagate/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// supplied through environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values into slices for
// the paths in sliceConfigPaths. YAML files provide real lists; env vars
// provide "a,b,c" strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw := k.Get(path)
		s, ok := raw.(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT        -> server.port
//   - DUCKDB_PATH      -> database.path
//   - TSDB_URL         -> tsdb.url
//   - JWT_SECRET       -> auth.jwt_secret
//   - EXPORT_WINDOW    -> export.window_seconds
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":            "server.host",
		"http_port":            "server.port",
		"http_read_timeout":    "server.read_timeout",
		"http_write_timeout":   "server.write_timeout",
		"http_idle_timeout":    "server.idle_timeout",
		"shutdown_timeout":     "server.shutdown_timeout",
		"cors_origins":         "server.cors_origins",
		"rate_limit":           "server.rate_limit",
		"rate_limit_window":    "server.rate_limit_window",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Upstream time-series store mappings
		"tsdb_url":                  "tsdb.url",
		"tsdb_username":             "tsdb.username",
		"tsdb_password":             "tsdb.password",
		"tsdb_timeout":              "tsdb.timeout",
		"tsdb_breaker_enabled":      "tsdb.breaker_enabled",
		"tsdb_breaker_max_failures": "tsdb.breaker_max_failures",
		"tsdb_breaker_timeout":      "tsdb.breaker_timeout",

		// Auth mappings
		"jwt_secret":            "auth.jwt_secret",
		"jwt_issuer":            "auth.issuer",
		"groups_claim":          "auth.groups_claim",
		"bypass_group":          "auth.bypass_group",
		"login_rate_per_minute": "auth.login_rate_per_minute",
		"login_burst":           "auth.login_burst",

		// Export mappings
		"export_window":          "export.window_seconds",
		"export_window_seconds":  "export.window_seconds",
		"export_on_window_error": "export.on_window_error",
		"export_timezone":        "export.timezone",
		"export_search_limit":    "export.search_limit",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are ignored rather than guessed at; an unmapped
	// name returning "" is dropped by the env provider.
	return ""
}
