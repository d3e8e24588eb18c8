package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Tools locates the external converters. Dir is the resource directory the
// bundled binaries live in; each per-tool value overrides the default binary
// name and may be absolute or relative to Dir.
type Tools struct {
	Dir              string `toml:"dir"`
	Archiver         string `toml:"archiver"`
	DiscPatcher      string `toml:"disc_patcher"`
	ChdManager       string `toml:"chd_manager"`
	DiscTool         string `toml:"disc_tool"`
	SquashfsPacker   string `toml:"squashfs_packer"`
	SquashfsUnpacker string `toml:"squashfs_unpacker"`
}

// Pipeline contains run-level knobs shared by every operation.
type Pipeline struct {
	ToolTimeoutSeconds    int    `toml:"tool_timeout_seconds"`
	CleanupTimeoutSeconds int    `toml:"cleanup_timeout_seconds"`
	Cleanup               string `toml:"cleanup"`
	CompressionLevel      string `toml:"compression_level"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	RunLogs       bool   `toml:"run_logs"`
}

// History controls the SQLite run history.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values for b2pc.
//
// Configuration sections by subsystem:
//   - Paths: state (history database) and log directories
//   - Tools: resource directory and per-tool executable overrides
//   - Pipeline: tool timeout, cleanup policy and SquashFS compression default
//   - Logging: log format, level, retention and per-run log files
//   - History: SQLite run history toggle
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tools         Tools         `toml:"tools"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Logging       Logging       `toml:"logging"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the location of the run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// ToolTimeout returns the per-invocation ceiling for external tools.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Pipeline.ToolTimeoutSeconds) * time.Second
}

// CleanupTimeout returns how long the cleanup prompt waits for an answer.
func (c *Config) CleanupTimeout() time.Duration {
	return time.Duration(c.Pipeline.CleanupTimeoutSeconds) * time.Second
}

// ToolOverrides maps logical tool names to configured executables. Entries
// left blank are omitted so the registry falls back to its defaults.
func (c *Config) ToolOverrides() map[string]string {
	overrides := make(map[string]string, 6)
	for name, value := range map[string]string{
		"archiver":          c.Tools.Archiver,
		"disc-patcher":      c.Tools.DiscPatcher,
		"chd-manager":       c.Tools.ChdManager,
		"disc-tool":         c.Tools.DiscTool,
		"squashfs-packer":   c.Tools.SquashfsPacker,
		"squashfs-unpacker": c.Tools.SquashfsUnpacker,
	} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			overrides[name] = trimmed
		}
	}
	return overrides
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
