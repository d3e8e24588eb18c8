package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ToolTimeoutSeconds <= 0 {
		return errors.New("pipeline.tool_timeout_seconds must be positive")
	}
	if c.Pipeline.CleanupTimeoutSeconds <= 0 {
		return errors.New("pipeline.cleanup_timeout_seconds must be positive")
	}
	switch c.Pipeline.Cleanup {
	case CleanupAsk, CleanupAlways, CleanupNever:
	default:
		return fmt.Errorf("pipeline.cleanup: unsupported value %q (want ask, always or never)", c.Pipeline.Cleanup)
	}
	switch c.Pipeline.CompressionLevel {
	case "fast", "medium", "maximum":
	default:
		return fmt.Errorf("pipeline.compression_level: unsupported value %q (want fast, medium or maximum)", c.Pipeline.CompressionLevel)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeoutSeconds <= 0 {
		return errors.New("notifications.request_timeout_seconds must be positive")
	}
	return nil
}
