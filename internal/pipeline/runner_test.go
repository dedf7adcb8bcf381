package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conveyor/internal/checkpoint"
	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/failures"
	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/retry"
	"conveyor/internal/runlock"
	"conveyor/internal/stage"
	"conveyor/internal/testsupport"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return testsupport.NewConfig(t)
}

func newTestStore(t *testing.T, cfg *config.Config, keep int) *checkpoint.Store {
	t.Helper()
	return testsupport.OpenStore(t, cfg, keep)
}

func mustRegistry(t *testing.T, defs ...stage.Definition) *stage.Registry {
	t.Helper()
	registry, err := stage.NewRegistry(defs...)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	return registry
}

func newTestRunner(t *testing.T, cfg *config.Config, registry *stage.Registry, store *checkpoint.Store) *pipeline.Runner {
	t.Helper()
	runner, err := pipeline.New(cfg, registry, store, nil, nil)
	if err != nil {
		t.Fatalf("pipeline.New returned error: %v", err)
	}
	return runner
}

// appendStage returns a stage function that appends its marker to the
// document body, so the body records the exact execution trail.
func appendStage(name string) stage.Func {
	return func(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
		out := doc.Clone()
		out.Body += name + ";"
		return out, nil
	}
}

func baseRunConfig() pipeline.RunConfig {
	return pipeline.RunConfig{
		EnableCheckpoints: true,
		EnableRetry:       true,
		RetryPolicy: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			Multiplier:   2,
		},
		SavePartialResults: true,
	}
}

func TestDegradableStageFallsBackAndRunSucceeds(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)

	attempts := 0
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: appendStage("ingestion")},
		stage.Definition{Name: "extraction", Run: appendStage("extraction")},
		stage.Definition{Name: "transformation", Run: appendStage("transformation")},
		stage.Definition{
			Name: "validation",
			Run: func(_ context.Context, _ *document.Document, _ *config.Config) (*document.Document, error) {
				attempts++
				return nil, failures.Wrap(failures.ErrRecoverable, "validation", "check", "transient validator outage", nil)
			},
			Fallback: func(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
				out := doc.Clone()
				out.Metadata["validation"] = "skipped"
				return out, nil
			},
		},
		stage.Definition{Name: "layout", Run: appendStage("layout")},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)

	runner := newTestRunner(t, cfg, registry, store)
	outcome, err := runner.Run(context.Background(), document.New("report.md"), baseRunConfig())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if outcome.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", outcome.Status)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 validation attempts before degrading, got %d", attempts)
	}
	if len(outcome.NonFatal) != 1 {
		t.Fatalf("expected 1 non-fatal error, got %d", len(outcome.NonFatal))
	}
	if perr := outcome.NonFatal[0]; perr.Stage != "validation" || perr.Kind != "recoverable" {
		t.Fatalf("unexpected non-fatal error: %+v", perr)
	}
	if len(outcome.Results) != 6 {
		t.Fatalf("expected 6 stage results, got %d", len(outcome.Results))
	}
	for _, result := range outcome.Results {
		wantSuccess := result.StageName != "validation"
		if result.Success != wantSuccess {
			t.Fatalf("stage %s success = %v", result.StageName, result.Success)
		}
	}
	if outcome.Document.Metadata["validation"] != "skipped" {
		t.Fatal("expected fallback to mark the document")
	}
	if got := outcome.Document.Body; got != "ingestion;extraction;transformation;layout;generation;" {
		t.Fatalf("unexpected execution trail %q", got)
	}

	// Degraded stages are never checkpointed.
	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 checkpoints, got %d", len(records))
	}
	for _, record := range records {
		if record.StageName == "validation" {
			t.Fatal("degraded stage must not produce a checkpoint")
		}
	}
}

func TestCriticalErrorBypassesFallback(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)

	attempts := 0
	fallbackCalled := false
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: appendStage("ingestion")},
		stage.Definition{
			Name: "validation",
			Run: func(_ context.Context, _ *document.Document, _ *config.Config) (*document.Document, error) {
				attempts++
				return nil, failures.Wrap(failures.ErrCritical, "validation", "check", "validator corrupted its state", nil)
			},
			Fallback: func(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
				fallbackCalled = true
				return doc.Clone(), nil
			},
		},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)

	runner := newTestRunner(t, cfg, registry, store)
	outcome, err := runner.Run(context.Background(), document.New("report.md"), baseRunConfig())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if outcome.Status != pipeline.StatusFailed {
		t.Fatalf("expected FAILED, got %s", outcome.Status)
	}
	if fallbackCalled {
		t.Fatal("fallback must not run for a critical error")
	}
	if attempts != 1 {
		t.Fatalf("critical failures must not be retried; got %d attempts", attempts)
	}
	if outcome.FailedStage != "validation" {
		t.Fatalf("unexpected failed stage %q", outcome.FailedStage)
	}
	if len(outcome.NonFatal) != 0 {
		t.Fatalf("critical failures must not be recorded as non-fatal: %+v", outcome.NonFatal)
	}
}

func TestCriticalFailureSkipsRetriesAndWritesBundle(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)

	attempts := 0
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: appendStage("ingestion")},
		stage.Definition{
			Name:     "extraction",
			Critical: true,
			Run: func(_ context.Context, _ *document.Document, _ *config.Config) (*document.Document, error) {
				attempts++
				return nil, failures.Wrap(failures.ErrCritical, "extraction", "parse", "unreadable source", nil)
			},
		},
		stage.Definition{Name: "transformation", Run: appendStage("transformation")},
		stage.Definition{Name: "validation", Run: appendStage("validation")},
		stage.Definition{Name: "layout", Run: appendStage("layout")},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)

	runner := newTestRunner(t, cfg, registry, store)
	outcome, err := runner.Run(context.Background(), document.New("report.md"), baseRunConfig())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if outcome.Status != pipeline.StatusFailed {
		t.Fatalf("expected FAILED, got %s", outcome.Status)
	}
	if attempts != 1 {
		t.Fatalf("critical failures must not be retried; got %d attempts", attempts)
	}
	if outcome.FailedStage != "extraction" {
		t.Fatalf("unexpected failed stage %q", outcome.FailedStage)
	}
	if outcome.Failure == nil || outcome.Failure.Kind != "critical" {
		t.Fatalf("unexpected terminal error: %+v", outcome.Failure)
	}
	if len(outcome.Failure.Remediation) == 0 {
		t.Fatal("expected remediation suggestions on the terminal error")
	}
	if got := outcome.LastSuccessfulStage(); got != "ingestion" {
		t.Fatalf("expected last successful stage ingestion, got %q", got)
	}

	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 1 || records[0].StageName != "ingestion" {
		t.Fatalf("expected exactly one ingestion checkpoint, got %+v", records)
	}
	if !strings.HasPrefix(outcome.LastCheckpointID, "ingestion-") {
		t.Fatalf("unexpected last checkpoint id %q", outcome.LastCheckpointID)
	}

	if outcome.BundlePath == "" {
		t.Fatal("expected a partial-results bundle path")
	}
	raw, err := os.ReadFile(filepath.Join(outcome.BundlePath, "recovery_info.json"))
	if err != nil {
		t.Fatalf("read recovery info: %v", err)
	}
	var info struct {
		FailedStage      string `json:"failed_stage"`
		ResumeFromStage  string `json:"resume_from_stage"`
		LastCheckpointID string `json:"last_checkpoint_id"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decode recovery info: %v", err)
	}
	if info.ResumeFromStage != "extraction" || info.FailedStage != "extraction" {
		t.Fatalf("unexpected recovery info: %+v", info)
	}
	if info.LastCheckpointID != outcome.LastCheckpointID {
		t.Fatalf("recovery info checkpoint %q, outcome %q", info.LastCheckpointID, outcome.LastCheckpointID)
	}

	raw, err = os.ReadFile(filepath.Join(outcome.BundlePath, "stage_results.json"))
	if err != nil {
		t.Fatalf("read stage results: %v", err)
	}
	var results []pipeline.StageResult
	if err := json.Unmarshal(raw, &results); err != nil {
		t.Fatalf("decode stage results: %v", err)
	}
	if len(results) != 1 || results[0].StageName != "ingestion" {
		t.Fatalf("unexpected bundled results: %+v", results)
	}
	if _, err := os.Stat(filepath.Join(outcome.BundlePath, "stage_data.json")); err != nil {
		t.Fatalf("expected stage_data.json in bundle: %v", err)
	}
}

func TestResumeFromStageWithoutCheckpointFailsBeforeAnyStage(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)

	executed := 0
	counting := func(name string) stage.Func {
		return func(_ context.Context, doc *document.Document, _ *config.Config) (*document.Document, error) {
			executed++
			return doc.Clone(), nil
		}
	}
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: counting("ingestion")},
		stage.Definition{Name: "transformation", Run: counting("transformation")},
		stage.Definition{Name: "generation", Run: counting("generation")},
	)

	runner := newTestRunner(t, cfg, registry, store)
	runCfg := baseRunConfig()
	runCfg.ResumeFromStage = "transformation"

	_, err := runner.Run(context.Background(), document.New("report.md"), runCfg)
	if !errors.Is(err, failures.ErrCheckpoint) {
		t.Fatalf("expected checkpoint error, got %v", err)
	}
	if executed != 0 {
		t.Fatalf("no stage may execute before resume fails; %d ran", executed)
	}
}

func TestCheckpointCountMatchesStagesExecuted(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: appendStage("ingestion")},
		stage.Definition{Name: "transformation", Run: appendStage("transformation")},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)
	runner := newTestRunner(t, cfg, registry, store)

	outcome, err := runner.Run(context.Background(), document.New("report.md"), baseRunConfig())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", outcome.Status)
	}
	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != len(outcome.Results) {
		t.Fatalf("expected %d checkpoints, got %d", len(outcome.Results), len(records))
	}
}

func TestNoCheckpointsWhenDisabled(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: appendStage("ingestion")},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)
	runner := newTestRunner(t, cfg, registry, store)

	runCfg := baseRunConfig()
	runCfg.EnableCheckpoints = false
	outcome, err := runner.Run(context.Background(), document.New("report.md"), runCfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", outcome.Status)
	}
	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no checkpoints, got %d", len(records))
	}
}

func TestCancellationInterruptsBackoff(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)
	registry := mustRegistry(t,
		stage.Definition{
			Name: "ingestion",
			Run: func(_ context.Context, _ *document.Document, _ *config.Config) (*document.Document, error) {
				return nil, failures.Wrap(failures.ErrRecoverable, "ingestion", "read", "source busy", nil)
			},
		},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)
	runner := newTestRunner(t, cfg, registry, store)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	runCfg := baseRunConfig()
	runCfg.RetryPolicy.InitialDelay = 5 * time.Second

	started := time.Now()
	_, err := runner.Run(ctx, document.New("report.md"), runCfg)
	if !errors.Is(err, failures.ErrCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("cancellation did not interrupt backoff; took %s", elapsed)
	}
}

func TestRunLogsCarryRunAndStageFields(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: appendStage("ingestion")},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New returned error: %v", err)
	}
	runner, err := pipeline.New(cfg, registry, store, nil, logger)
	if err != nil {
		t.Fatalf("pipeline.New returned error: %v", err)
	}

	outcome, err := runner.Run(context.Background(), document.New("report.md"), baseRunConfig())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var stageLine, summaryLine string
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.Contains(line, "stage completed") && strings.Contains(line, "stage=ingestion"):
			stageLine = line
		case strings.Contains(line, "run succeeded"):
			summaryLine = line
		}
	}
	if stageLine == "" {
		t.Fatalf("no stage-completion line for ingestion in output:\n%s", buf.String())
	}
	if !strings.Contains(stageLine, "run_id="+outcome.RunID) {
		t.Fatalf("stage line missing run id: %s", stageLine)
	}
	if summaryLine == "" || !strings.Contains(summaryLine, "run_id="+outcome.RunID) {
		t.Fatalf("run summary missing run id: %s", summaryLine)
	}
}

func TestRunHoldsAndReleasesWorkspaceLock(t *testing.T) {
	cfg := newTestConfig(t)
	store := newTestStore(t, cfg, 10)
	registry := mustRegistry(t,
		stage.Definition{Name: "ingestion", Run: appendStage("ingestion")},
		stage.Definition{Name: "generation", Run: appendStage("generation")},
	)
	lock := runlock.New(cfg.Paths.WorkspaceDir, nil)
	runner, err := pipeline.New(cfg, registry, store, lock, nil)
	if err != nil {
		t.Fatalf("pipeline.New returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := runner.Run(context.Background(), document.New("report.md"), baseRunConfig()); err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	}
}
