package config

import (
	"errors"
	"fmt"
)

var knownLayouts = map[string]struct{}{
	"auto":    {},
	"article": {},
	"deck":    {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkspaceDir == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.WorkspaceDir == c.Paths.OutputDir {
		return errors.New("paths.workspace_dir and paths.output_dir must differ")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MaxRetryAttempts < 1 {
		return errors.New("pipeline.max_retry_attempts must be positive")
	}
	if c.Pipeline.RetryInitialDelayMS < 1 {
		return errors.New("pipeline.retry_initial_delay_ms must be positive")
	}
	if c.Pipeline.RetryBackoffMultiplier < 1 {
		return errors.New("pipeline.retry_backoff_multiplier must be >= 1")
	}
	if c.Pipeline.KeepCheckpoints < 1 {
		return errors.New("pipeline.keep_checkpoints must be positive")
	}
	if _, ok := knownLayouts[c.Pipeline.Layout]; !ok {
		return fmt.Errorf("pipeline.layout %q is not supported (auto, article, deck)", c.Pipeline.Layout)
	}
	return nil
}
