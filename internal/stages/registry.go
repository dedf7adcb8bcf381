package stages

import (
	"conveyor/internal/config"
	"conveyor/internal/stage"
)

// Canonical stage names in execution order.
const (
	StageIngestion      = "ingestion"
	StageExtraction     = "extraction"
	StageTransformation = "transformation"
	StageLayout         = "layout"
	StageValidation     = "validation"
	StageGeneration     = "generation"
)

// DefaultRegistry builds the built-in six-stage pipeline. Validation is the
// only degradable stage; pipeline.critical_stages from the configuration is
// applied on top.
func DefaultRegistry(cfg *config.Config) (*stage.Registry, error) {
	registry, err := stage.NewRegistry(
		stage.Definition{Name: StageIngestion, Run: Ingest},
		stage.Definition{Name: StageExtraction, Run: Extract},
		stage.Definition{Name: StageTransformation, Run: Transform},
		stage.Definition{Name: StageLayout, Run: Layout},
		stage.Definition{Name: StageValidation, Run: Validate, Fallback: SkipValidation},
		stage.Definition{Name: StageGeneration, Run: Generate},
	)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		registry.MarkCritical(cfg.Pipeline.CriticalStages)
	}
	return registry, nil
}
