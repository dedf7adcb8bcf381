package testsupport

import (
	"path/filepath"
	"testing"

	"conveyor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Pipeline.RetryInitialDelayMS = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithLayout overrides the pipeline layout selection.
func WithLayout(layout string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.Layout = layout
	}
}

// WithCriticalStages replaces the configured critical stage overrides.
func WithCriticalStages(names ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.CriticalStages = names
	}
}
