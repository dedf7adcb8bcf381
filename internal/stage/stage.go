package stage

import (
	"context"

	"conveyor/internal/config"
	"conveyor/internal/document"
)

// Func is the contract every pipeline stage satisfies: consume a working
// document, produce a new one. Implementations must treat the input as
// read-only so a retried invocation never observes partial mutation.
type Func func(ctx context.Context, doc *document.Document, cfg *config.Config) (*document.Document, error)

// Definition describes one registered stage.
type Definition struct {
	// Name identifies the stage in checkpoints, logs, and resume requests.
	Name string
	// Run is the stage function.
	Run Func
	// Critical marks the stage as run-aborting on exhausted-retry failure.
	// The first and last stages of a registry are critical regardless.
	Critical bool
	// Fallback masks an exhausted-retry failure for a degradable stage. A
	// degradable stage without a fallback is treated as critical for the run.
	Fallback Func
}
