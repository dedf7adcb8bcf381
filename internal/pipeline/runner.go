package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"conveyor/internal/checkpoint"
	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
	"conveyor/internal/logging"
	"conveyor/internal/retry"
	"conveyor/internal/runlock"
	"conveyor/internal/stage"
)

// Runner drives one document through the registered stage sequence. Execution
// is strictly sequential; the only suspension point is the retry backoff.
type Runner struct {
	cfg      *config.Config
	registry *stage.Registry
	store    *checkpoint.Store
	lock     *runlock.Lock
	logger   *slog.Logger
}

// New constructs a runner. The lock is optional; when present it is held for
// the duration of every Run so concurrent runs against the same workspace
// fail fast instead of interleaving checkpoint writes.
func New(cfg *config.Config, registry *stage.Registry, store *checkpoint.Store, lock *runlock.Lock, logger *slog.Logger) (*Runner, error) {
	if cfg == nil || registry == nil || store == nil {
		return nil, errors.New("runner requires config, registry, and checkpoint store")
	}
	return &Runner{
		cfg:      cfg,
		registry: registry,
		store:    store,
		lock:     lock,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Run executes the pipeline over doc and returns the terminal outcome. A
// FAILED run is still a (Outcome, nil) return; a non-nil error means the
// orchestrator itself could not proceed (cancellation, resume failure, or a
// checkpoint write error).
func (r *Runner) Run(ctx context.Context, doc *document.Document, runCfg RunConfig) (*Outcome, error) {
	if doc == nil {
		return nil, errors.New("run requires a document")
	}
	if r.lock != nil {
		if err := r.lock.Acquire(); err != nil {
			return nil, err
		}
		defer r.lock.Release()
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	state := &runState{
		working: doc.Clone(),
	}
	if runCfg.ResumeFromStage != "" || runCfg.ResumeFromCheckpoint != "" {
		restored, err := r.restore(ctx, runCfg)
		if err != nil {
			return nil, err
		}
		state = restored
		logger.Info("run resumed",
			logging.String(logging.FieldCheckpointID, state.lastCheckpointID),
			logging.String(logging.FieldStage, state.resumedAfter),
		)
	}

	defs := r.registry.Definitions()
	for i := state.nextIndex; i < len(defs); i++ {
		def := defs[i]
		stageCtx := logging.WithStage(ctx, def.Name)
		stageLogger := logging.WithContext(stageCtx, r.logger)

		started := time.Now()
		result, err := r.invoke(stageCtx, def, state.working, runCfg, stageLogger)
		elapsed := time.Since(started)

		if err == nil {
			payload, merr := result.Marshal()
			if merr != nil {
				return nil, merr
			}
			state.working = result
			state.results = append(state.results, StageResult{
				StageName: def.Name,
				Success:   true,
				Duration:  elapsed,
				Document:  payload,
			})
			stageLogger.Info("stage completed", logging.Duration("elapsed", elapsed))

			if runCfg.EnableCheckpoints {
				record, serr := r.saveCheckpoint(stageCtx, def.Name, runCfg, state)
				if serr != nil {
					return nil, serr
				}
				state.lastCheckpointID = record.ID
			}
			continue
		}

		if errors.Is(err, failures.ErrCancelled) {
			return nil, err
		}

		perr := newError(def.Name, err).withContext(logging.FieldRunID, runID)
		// A critical-class error aborts the run even when the stage itself is
		// degradable; the fallback path is only for recoverable failures.
		if !errors.Is(err, failures.ErrCritical) && !r.registry.Critical(def.Name) {
			degraded, derr := r.degrade(stageCtx, def, state.working, stageLogger)
			if derr == nil {
				payload, merr := degraded.Marshal()
				if merr != nil {
					return nil, merr
				}
				state.working = degraded
				state.results = append(state.results, StageResult{
					StageName: def.Name,
					Success:   false,
					Duration:  elapsed,
					Document:  payload,
				})
				state.nonFatal = append(state.nonFatal, perr)
				stageLogger.Warn("stage degraded via fallback", logging.Error(err))
				continue
			}
			perr = newError(def.Name, derr).withContext(logging.FieldRunID, runID)
		}

		stageLogger.Error("stage failed; run aborted",
			logging.String(logging.FieldEventType, "run_failed"),
			logging.Error(perr),
		)
		return r.fail(stageCtx, runID, def.Name, perr, state, runCfg)
	}

	logger.Info("run succeeded",
		logging.String(logging.FieldEventType, "run_succeeded"),
		logging.Int("stages", len(state.results)),
	)
	return &Outcome{
		RunID:            runID,
		Status:           StatusSucceeded,
		Results:          state.results,
		Document:         state.working,
		NonFatal:         state.nonFatal,
		LastCheckpointID: state.lastCheckpointID,
		ResumedFrom:      state.resumedAfter,
	}, nil
}

// runState is the mutable in-flight state of one run.
type runState struct {
	nextIndex        int
	working          *document.Document
	results          []StageResult
	nonFatal         []*Error
	lastCheckpointID string
	resumedAfter     string
}

// invoke runs one stage function, wrapped by the retry executor when enabled.
// The stage receives a clone of the working document so a retried attempt
// never observes partial mutation from an earlier one.
func (r *Runner) invoke(ctx context.Context, def stage.Definition, working *document.Document, runCfg RunConfig, logger *slog.Logger) (*document.Document, error) {
	var out *document.Document
	attempt := func(ctx context.Context) error {
		produced, err := def.Run(ctx, working.Clone(), r.cfg)
		if err != nil {
			return err
		}
		if produced == nil {
			return failures.Wrap(failures.ErrCritical, def.Name, "invoke", "stage returned no document", nil)
		}
		out = produced
		return nil
	}

	if runCfg.EnableRetry {
		if err := retry.Run(ctx, runCfg.RetryPolicy, logger, attempt); err != nil {
			return nil, err
		}
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, failures.Wrap(failures.ErrCancelled, def.Name, "invoke", "run cancelled before stage", err)
	}
	if err := attempt(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// degrade applies a stage's fallback to the working document. A fallback
// error escalates the failure back to the caller.
func (r *Runner) degrade(ctx context.Context, def stage.Definition, working *document.Document, logger *slog.Logger) (*document.Document, error) {
	if def.Fallback == nil {
		return nil, failures.Wrap(failures.ErrCritical, def.Name, "degrade", "no fallback registered", nil)
	}
	out, err := def.Fallback(ctx, working.Clone(), r.cfg)
	if err != nil {
		return nil, fmt.Errorf("fallback for stage %s: %w", def.Name, err)
	}
	if out == nil {
		return nil, failures.Wrap(failures.ErrCritical, def.Name, "degrade", "fallback returned no document", nil)
	}
	logger.Debug("fallback applied")
	return out, nil
}

func (r *Runner) saveCheckpoint(ctx context.Context, stageName string, runCfg RunConfig, state *runState) (checkpoint.Record, error) {
	snap, err := buildSnapshot(r.registry.Sequence(), runCfg, state.results, state.working)
	if err != nil {
		return checkpoint.Record{}, err
	}
	record, err := r.store.Save(ctx, stageName, snap)
	if err != nil {
		return checkpoint.Record{}, failures.Wrap(failures.ErrCheckpoint, stageName, "save", "persist checkpoint", err)
	}
	return record, nil
}

// fail finalizes a FAILED run: write the partial-results bundle when enabled
// and assemble the terminal outcome.
func (r *Runner) fail(ctx context.Context, runID, failedStage string, perr *Error, state *runState, runCfg RunConfig) (*Outcome, error) {
	outcome := &Outcome{
		RunID:            runID,
		Status:           StatusFailed,
		Results:          state.results,
		Document:         state.working,
		NonFatal:         state.nonFatal,
		Failure:          perr,
		FailedStage:      failedStage,
		LastCheckpointID: state.lastCheckpointID,
		ResumedFrom:      state.resumedAfter,
	}
	if runCfg.SavePartialResults {
		path, err := r.writeBundle(ctx, runID, failedStage, perr, state)
		if err != nil {
			r.logger.Error("failed to write partial-results bundle", logging.Error(err))
		} else {
			outcome.BundlePath = path
		}
	}
	return outcome, nil
}
