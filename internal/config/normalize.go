package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTools(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() error {
	if strings.TrimSpace(c.Tools.Dir) == "" {
		if value, ok := os.LookupEnv("B2PC_TOOLS_DIR"); ok {
			c.Tools.Dir = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Tools.Dir) == "" {
		c.Tools.Dir = ""
		return nil
	}
	var err error
	if c.Tools.Dir, err = expandPath(strings.TrimSpace(c.Tools.Dir)); err != nil {
		return fmt.Errorf("tools.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.Cleanup = strings.ToLower(strings.TrimSpace(c.Pipeline.Cleanup))
	if c.Pipeline.Cleanup == "" {
		c.Pipeline.Cleanup = defaultCleanupMode
	}
	c.Pipeline.CompressionLevel = strings.ToLower(strings.TrimSpace(c.Pipeline.CompressionLevel))
	if c.Pipeline.CompressionLevel == "" {
		c.Pipeline.CompressionLevel = defaultCompressionLevel
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
