package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/checkpoint"
	"conveyor/internal/config"
	"conveyor/internal/document"
	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/runlock"
	"conveyor/internal/stages"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		resumeFrom       string
		resumeCheckpoint string
		noCheckpoints    bool
		noRetry          bool
		maxRetries       int
		noPartial        bool
		outputDir        string
	)

	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Run the conversion pipeline over a source document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(resumeFrom) != "" && strings.TrimSpace(resumeCheckpoint) != "" {
				return errors.New("--resume-from and --resume-checkpoint are mutually exclusive")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dir := strings.TrimSpace(outputDir); dir != "" {
				expanded, err := config.ExpandPath(dir)
				if err != nil {
					return err
				}
				cfg.Paths.OutputDir = expanded
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			store, err := checkpoint.Open(cfg.CheckpointDir(), checkpoint.Options{
				Keep:   cfg.Pipeline.KeepCheckpoints,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			registry, err := stages.DefaultRegistry(cfg)
			if err != nil {
				return err
			}
			lock := runlock.New(cfg.Paths.WorkspaceDir, logger)
			runner, err := pipeline.New(cfg, registry, store, lock, logger)
			if err != nil {
				return err
			}

			runCfg := pipeline.RunConfigFromConfig(cfg)
			runCfg.ResumeFromStage = strings.TrimSpace(resumeFrom)
			runCfg.ResumeFromCheckpoint = strings.TrimSpace(resumeCheckpoint)
			if noCheckpoints {
				runCfg.EnableCheckpoints = false
			}
			if noRetry {
				runCfg.EnableRetry = false
			}
			if cmd.Flags().Changed("max-retries") {
				runCfg.RetryPolicy.MaxAttempts = maxRetries
			}
			if noPartial {
				runCfg.SavePartialResults = false
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			outcome, err := runner.Run(runCtx, document.New(args[0]), runCfg)
			if err != nil {
				return err
			}
			printOutcome(cmd, outcome)
			if outcome.Status == pipeline.StatusFailed {
				return fmt.Errorf("run %s failed at stage %s", outcome.RunID, outcome.FailedStage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resumeFrom, "resume-from", "", "Resume after the most recent checkpoint for this stage")
	cmd.Flags().StringVar(&resumeCheckpoint, "resume-checkpoint", "", "Resume from a specific checkpoint id")
	cmd.Flags().BoolVar(&noCheckpoints, "no-checkpoints", false, "Disable checkpoint persistence for this run")
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "Disable retries; every stage gets one attempt")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Override the maximum retry attempts per stage")
	cmd.Flags().BoolVar(&noPartial, "no-partial", false, "Skip the partial-results bundle on failure")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Override the artifact output directory")

	return cmd
}

func printOutcome(cmd *cobra.Command, outcome *pipeline.Outcome) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	headers := []string{"STAGE", "RESULT", "DURATION"}
	rows := make([][]string, 0, len(outcome.Results))
	for _, result := range outcome.Results {
		label := "ok"
		if !result.Success {
			label = "degraded"
		}
		rows = append(rows, []string{
			result.StageName,
			label,
			result.Duration.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))

	fmt.Fprintf(out, "Run %s: %s\n", outcome.RunID, statusLabel(string(outcome.Status), outcome.Status == pipeline.StatusSucceeded, colorize))
	for _, perr := range outcome.NonFatal {
		fmt.Fprintf(out, "  degraded: %s\n", perr.Error())
	}

	if outcome.Status == pipeline.StatusSucceeded {
		if outcome.Document != nil && outcome.Document.ArtifactPath != "" {
			fmt.Fprintf(out, "Artifact: %s\n", outcome.Document.ArtifactPath)
		}
		return
	}

	if outcome.Failure != nil {
		fmt.Fprintf(out, "Failure: %s\n", outcome.Failure.Error())
		for _, suggestion := range outcome.Failure.Remediation {
			fmt.Fprintf(out, "  - %s\n", suggestion)
		}
	}
	if last := outcome.LastSuccessfulStage(); last != "" {
		fmt.Fprintf(out, "Last successful stage: %s\n", last)
	}
	if outcome.LastCheckpointID != "" {
		fmt.Fprintf(out, "Resume with: conveyor run --resume-checkpoint %s\n", outcome.LastCheckpointID)
	}
	if outcome.BundlePath != "" {
		fmt.Fprintf(out, "Partial results: %s\n", outcome.BundlePath)
	}
}
