// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateTSDB(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.validateExport(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got %d", c.Server.RateLimit)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must not be negative, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateTSDB() error {
	if c.TSDB.URL == "" {
		return fmt.Errorf("TSDB_URL is required")
	}
	u, err := url.Parse(c.TSDB.URL)
	if err != nil {
		return fmt.Errorf("TSDB_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("TSDB_URL must use http or https scheme, got %q", u.Scheme)
	}
	if c.TSDB.Timeout <= 0 {
		return fmt.Errorf("tsdb.timeout must be positive, got %s", c.TSDB.Timeout)
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
	}
	if c.Auth.BypassGroup == "" {
		return fmt.Errorf("auth.bypass_group must not be empty")
	}
	return nil
}

func (c *Config) validateExport() error {
	if c.Export.WindowSeconds <= 0 {
		return fmt.Errorf("export.window_seconds must be positive, got %d", c.Export.WindowSeconds)
	}
	switch strings.ToLower(c.Export.OnWindowError) {
	case "continue", "abort":
	default:
		return fmt.Errorf("export.on_window_error must be 'continue' or 'abort', got %q", c.Export.OnWindowError)
	}
	if c.Export.Timezone != "" {
		if _, err := time.LoadLocation(c.Export.Timezone); err != nil {
			return fmt.Errorf("export.timezone is not a valid IANA zone: %w", err)
		}
	}
	if c.Export.SearchLimit <= 0 {
		return fmt.Errorf("export.search_limit must be positive, got %d", c.Export.SearchLimit)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, fatal; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}
