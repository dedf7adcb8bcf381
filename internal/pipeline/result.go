package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
	"conveyor/internal/retry"
)

// Status is a terminal run state.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// StageResult records one stage invocation's outcome. Results are appended in
// strict stage order and never mutated afterwards.
type StageResult struct {
	StageName string          `json:"stage_name"`
	Success   bool            `json:"success"`
	Duration  time.Duration   `json:"duration_ns"`
	Document  json.RawMessage `json:"document,omitempty"`
}

// Error is the structured failure surfaced to orchestrator callers. Raw stage
// errors never escape the runner; they are converted here with stage context
// and remediation guidance attached.
type Error struct {
	Stage       string            `json:"stage"`
	Kind        string            `json:"kind"`
	Severity    string            `json:"severity"`
	Message     string            `json:"message"`
	Recoverable bool              `json:"recoverable"`
	Context     map[string]string `json:"context,omitempty"`
	Remediation []string          `json:"remediation,omitempty"`

	err error
}

func newError(stageName string, err error) *Error {
	return &Error{
		Stage:       stageName,
		Kind:        failures.Kind(err),
		Severity:    failures.SeverityOf(err).String(),
		Message:     err.Error(),
		Recoverable: failures.Retryable(err),
		Remediation: failures.Remediation(stageName),
		err:         err,
	}
}

// withContext attaches a diagnostic key/value pair.
func (e *Error) withContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %s", e.Stage, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// RunConfig is the frozen per-run parameterization. It is constructed once
// before Run and read-only for the lifetime of the run; a copy is serialized
// into every checkpoint.
type RunConfig struct {
	EnableCheckpoints    bool         `json:"enable_checkpoints"`
	EnableRetry          bool         `json:"enable_retry"`
	RetryPolicy          retry.Policy `json:"retry_policy"`
	SavePartialResults   bool         `json:"save_partial_results"`
	ResumeFromStage      string       `json:"resume_from_stage,omitempty"`
	ResumeFromCheckpoint string       `json:"resume_from_checkpoint,omitempty"`
}

// RunConfigFromConfig derives the default run parameterization from the
// repository configuration.
func RunConfigFromConfig(cfg *config.Config) RunConfig {
	return RunConfig{
		EnableCheckpoints: cfg.Pipeline.EnableCheckpoints,
		EnableRetry:       cfg.Pipeline.EnableRetry,
		RetryPolicy: retry.Policy{
			MaxAttempts:  cfg.Pipeline.MaxRetryAttempts,
			InitialDelay: time.Duration(cfg.Pipeline.RetryInitialDelayMS) * time.Millisecond,
			Multiplier:   cfg.Pipeline.RetryBackoffMultiplier,
		},
		SavePartialResults: cfg.Pipeline.SavePartialResults,
	}
}

// Outcome is the terminal output of a run.
type Outcome struct {
	RunID    string
	Status   Status
	Results  []StageResult
	Document *document.Document

	// NonFatal collects structured errors from degraded stages. Present on
	// SUCCEEDED outcomes too.
	NonFatal []*Error
	// Failure is the terminal error of a FAILED run.
	Failure *Error
	// FailedStage names the stage to resume from after a FAILED run.
	FailedStage string
	// LastCheckpointID is the most recent checkpoint written during the run,
	// or restored from when resuming.
	LastCheckpointID string
	// ResumedFrom names the checkpointed stage a resumed run restarted after.
	ResumedFrom string
	// BundlePath is the partial-results bundle directory of a FAILED run,
	// empty when bundling is disabled.
	BundlePath string
}

// LastSuccessfulStage returns the name of the last stage that completed
// successfully, or empty when none did.
func (o *Outcome) LastSuccessfulStage() string {
	for i := len(o.Results) - 1; i >= 0; i-- {
		if o.Results[i].Success {
			return o.Results[i].StageName
		}
	}
	return ""
}
