package testsupport

import (
	"path/filepath"
	"testing"

	"b2pc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Tools.Dir = filepath.Join(base, "tools")
	cfgVal.Pipeline.Cleanup = config.CleanupNever

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithStubbedTools writes the fake converters into the config's tools dir.
func WithStubbedTools() ConfigOption {
	return func(b *configBuilder) {
		StubTools(b.t, b.cfg.Tools.Dir)
	}
}

// WithToolTimeout overrides the per-invocation tool timeout.
func WithToolTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.ToolTimeoutSeconds = seconds
	}
}
