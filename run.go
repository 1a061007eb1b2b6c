package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ypsync/ypsync/internal/sched"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <config-id>",
		Short: "Run one sync config immediately",
		Long: `Execute a single sync config now, regardless of its cron schedule.
The run is recorded in the task audit like any scheduled run.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid config id %q", args[0])
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := shutdownContext(cmd.Context(), rootLogger)

	cfg, err := st.GetSyncConfig(ctx, id)
	if err != nil {
		return fmt.Errorf("loading config %d: %w", id, err)
	}

	runner := sched.NewJobRunner(st, rootLogger, resolvedCfg.Sync.MaxDepth)

	if err := runner.Run(ctx, cfg); err != nil {
		return err
	}

	statusf(flagQuiet, "Sync config %d finished.\n", id)

	return nil
}
