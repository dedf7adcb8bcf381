package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/checkpoint"
	"conveyor/internal/logging"
)

func newCheckpointsCommand(ctx *commandContext) *cobra.Command {
	checkpointsCmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"cp"},
		Short:   "Inspect and manage stored checkpoints",
	}

	checkpointsCmd.AddCommand(newCheckpointsListCommand(ctx))
	checkpointsCmd.AddCommand(newCheckpointsShowCommand(ctx))
	checkpointsCmd.AddCommand(newCheckpointsPruneCommand(ctx))

	return checkpointsCmd
}

func (c *commandContext) withStore(fn func(*checkpoint.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
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
	return fn(store)
}

func newCheckpointsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *checkpoint.Store) error {
				records, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No checkpoints stored")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						record.ID,
						record.StageName,
						record.CreatedAt.Local().Format(time.RFC3339),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "STAGE", "CREATED"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newCheckpointsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <checkpoint-id>",
		Short: "Show one checkpoint's restored state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *checkpoint.Store) error {
				cp, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checkpoint:  %s\n", cp.ID)
				fmt.Fprintf(out, "Stage:       %s\n", cp.StageName)
				fmt.Fprintf(out, "Created:     %s\n", cp.CreatedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(out, "Sequence:    %v\n", cp.Stages)
				fmt.Fprintf(out, "Results:     %d bytes\n", len(cp.Results))
				fmt.Fprintf(out, "Document:    %d bytes\n", len(cp.Document))
				return nil
			})
		},
	}
}

func newCheckpointsPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *checkpoint.Store) error {
				removed, err := store.Cleanup(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s checkpoint(s)\n", strconv.Itoa(removed))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Checkpoints to retain (defaults to pipeline.keep_checkpoints)")
	return cmd
}
