package config

const (
	defaultWorkspaceDir           = "~/.local/share/conveyor/workspace"
	defaultOutputDir              = "~/conveyor/output"
	defaultLogDir                 = "~/.local/share/conveyor/logs"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultMaxRetryAttempts       = 3
	defaultRetryInitialDelayMS    = 500
	defaultRetryBackoffMultiplier = 2.0
	defaultKeepCheckpoints        = 3
	defaultLayout                 = "auto"
)

// defaultCriticalStages lists the stages treated as critical in addition to the
// pipeline's first and last stages, which are always critical. Extraction and
// transformation are configurable because their criticality is provisional;
// operators can relax them via pipeline.critical_stages.
func defaultCriticalStages() []string {
	return []string{"extraction", "transformation"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			OutputDir:    defaultOutputDir,
			LogDir:       defaultLogDir,
		},
		Pipeline: Pipeline{
			EnableCheckpoints:      true,
			EnableRetry:            true,
			MaxRetryAttempts:       defaultMaxRetryAttempts,
			RetryInitialDelayMS:    defaultRetryInitialDelayMS,
			RetryBackoffMultiplier: defaultRetryBackoffMultiplier,
			SavePartialResults:     true,
			KeepCheckpoints:        defaultKeepCheckpoints,
			CriticalStages:         defaultCriticalStages(),
			Layout:                 defaultLayout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
