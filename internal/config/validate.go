package config

import (
	"fmt"
	"log/slog"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSync() error {
	switch c.Sync.Mode {
	case SyncModeHTTP:
		if c.Sync.Endpoint == "" {
			return fmt.Errorf("sync.endpoint is required when sync.mode = %q", SyncModeHTTP)
		}
		u, err := url.Parse(c.Sync.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("sync.endpoint must be an http(s) URL, got %q", c.Sync.Endpoint)
		}
	case SyncModeSimulated:
		if c.Sync.SuccessRate < 0 || c.Sync.SuccessRate > 1 {
			return fmt.Errorf("sync.success_rate must be within [0, 1], got %v", c.Sync.SuccessRate)
		}
		if c.Sync.LatencyMS < 0 {
			return fmt.Errorf("sync.latency_ms must be >= 0, got %d", c.Sync.LatencyMS)
		}
	case SyncModeNone:
	default:
		return fmt.Errorf("sync.mode must be one of %q, %q, %q; got %q",
			SyncModeHTTP, SyncModeSimulated, SyncModeNone, c.Sync.Mode)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a logging.level string to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", level)
	}
}
