package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"conveyor/internal/checkpoint"
	"conveyor/internal/document"
	"conveyor/internal/failures"
)

// buildSnapshot freezes run state into a checkpoint payload.
func buildSnapshot(sequence []string, runCfg RunConfig, results []StageResult, working *document.Document) (checkpoint.Snapshot, error) {
	cfgPayload, err := json.Marshal(runCfg)
	if err != nil {
		return checkpoint.Snapshot{}, fmt.Errorf("marshal run config: %w", err)
	}
	resultsPayload, err := json.Marshal(results)
	if err != nil {
		return checkpoint.Snapshot{}, fmt.Errorf("marshal stage results: %w", err)
	}
	docPayload, err := working.Marshal()
	if err != nil {
		return checkpoint.Snapshot{}, err
	}
	return checkpoint.Snapshot{
		Stages:   sequence,
		Config:   cfgPayload,
		Results:  resultsPayload,
		Document: docPayload,
	}, nil
}

// restore reconstructs run state from a named checkpoint or stage. The
// restored stage sequence must match the current registry exactly; a mismatch
// means the pipeline shape changed since the checkpoint was written and
// resuming would silently skip or repeat work.
func (r *Runner) restore(ctx context.Context, runCfg RunConfig) (*runState, error) {
	cp, err := r.lookupCheckpoint(ctx, runCfg)
	if err != nil {
		return nil, err
	}

	if err := r.validateSequence(cp); err != nil {
		return nil, err
	}

	idx, ok := r.registry.IndexOf(cp.StageName)
	if !ok {
		return nil, failures.Wrap(failures.ErrCheckpoint, cp.StageName, "resume",
			fmt.Sprintf("checkpoint %s references unknown stage", cp.ID), nil)
	}

	var results []StageResult
	if len(cp.Results) > 0 {
		if err := json.Unmarshal(cp.Results, &results); err != nil {
			return nil, failures.Wrap(failures.ErrCheckpoint, cp.StageName, "resume", "decode stage results", err)
		}
	}
	// The frozen run config is decoded as an integrity check; the current
	// invocation's options stay in effect.
	var savedCfg RunConfig
	if len(cp.Config) > 0 {
		if err := json.Unmarshal(cp.Config, &savedCfg); err != nil {
			return nil, failures.Wrap(failures.ErrCheckpoint, cp.StageName, "resume", "decode run config", err)
		}
	}
	doc, err := document.Unmarshal(cp.Document)
	if err != nil {
		return nil, failures.Wrap(failures.ErrCheckpoint, cp.StageName, "resume", "decode working document", err)
	}

	return &runState{
		nextIndex:        idx + 1,
		working:          doc,
		results:          results,
		lastCheckpointID: cp.ID,
		resumedAfter:     cp.StageName,
	}, nil
}

func (r *Runner) lookupCheckpoint(ctx context.Context, runCfg RunConfig) (*checkpoint.Checkpoint, error) {
	if id := strings.TrimSpace(runCfg.ResumeFromCheckpoint); id != "" {
		cp, err := r.store.Load(ctx, id)
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, failures.Wrap(failures.ErrCheckpoint, "", "resume",
				fmt.Sprintf("checkpoint %s does not exist", id), err)
		}
		if err != nil {
			return nil, failures.Wrap(failures.ErrCheckpoint, "", "resume", "load checkpoint", err)
		}
		return cp, nil
	}

	name := strings.ToLower(strings.TrimSpace(runCfg.ResumeFromStage))
	cp, err := r.store.ForStage(ctx, name)
	if err != nil {
		return nil, failures.Wrap(failures.ErrCheckpoint, name, "resume", "look up stage checkpoint", err)
	}
	if cp == nil {
		return nil, failures.Wrap(failures.ErrCheckpoint, name, "resume",
			"no checkpoint exists for stage; restart from the beginning or an earlier stage", nil)
	}
	return cp, nil
}

func (r *Runner) validateSequence(cp *checkpoint.Checkpoint) error {
	current := r.registry.Sequence()
	if len(cp.Stages) != len(current) {
		return sequenceMismatch(cp, current)
	}
	for i, name := range cp.Stages {
		if name != current[i] {
			return sequenceMismatch(cp, current)
		}
	}
	return nil
}

func sequenceMismatch(cp *checkpoint.Checkpoint, current []string) error {
	return failures.Wrap(failures.ErrCheckpoint, cp.StageName, "resume",
		fmt.Sprintf("stage sequence mismatch: checkpoint %s recorded %v, current pipeline is %v",
			cp.ID, cp.Stages, current), nil)
}
