package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxRetryAttempts <= 0 {
		c.Pipeline.MaxRetryAttempts = defaultMaxRetryAttempts
	}
	if c.Pipeline.RetryInitialDelayMS <= 0 {
		c.Pipeline.RetryInitialDelayMS = defaultRetryInitialDelayMS
	}
	if c.Pipeline.RetryBackoffMultiplier < 1 {
		c.Pipeline.RetryBackoffMultiplier = defaultRetryBackoffMultiplier
	}
	if c.Pipeline.KeepCheckpoints <= 0 {
		c.Pipeline.KeepCheckpoints = defaultKeepCheckpoints
	}

	stages := make([]string, 0, len(c.Pipeline.CriticalStages))
	seen := make(map[string]struct{}, len(c.Pipeline.CriticalStages))
	for _, name := range c.Pipeline.CriticalStages {
		normalized := strings.ToLower(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		stages = append(stages, normalized)
	}
	c.Pipeline.CriticalStages = stages

	c.Pipeline.Layout = strings.ToLower(strings.TrimSpace(c.Pipeline.Layout))
	if c.Pipeline.Layout == "" {
		c.Pipeline.Layout = defaultLayout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
