package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ypsync/ypsync/internal/config"
	"github.com/ypsync/ypsync/internal/sched"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler daemon",
		Long: `Run the cron dispatcher and background maintenance workers until
interrupted. Scheduled sync configs fire on their cron expressions; expiring
resource shares are re-created, expired shares cancelled, and account
profiles refreshed in the background.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := rootLogger

	pidPath := filepath.Join(config.DefaultDataDir(), "ypsync.pid")

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runner := sched.NewJobRunner(st, logger, resolvedCfg.Sync.MaxDepth)

	dispatcher, err := sched.New(sched.Config{
		Store:   st,
		Run:     runner.Run,
		Logger:  logger,
		Tick:    resolvedCfg.Dispatcher.Tick.Std(),
		Window:  resolvedCfg.Dispatcher.ExecutionWindow.Std(),
		MaxJobs: resolvedCfg.Dispatcher.MaxJobs,
	})
	if err != nil {
		return err
	}

	maintenance := sched.NewMaintenance(st, nil, logger)
	maintenance.SetRefreshWindow(resolvedCfg.Sync.ResourceRefreshWindow.Std())

	ctx := shutdownContext(cmd.Context(), logger)

	logger.Info("ypsync serve starting",
		"version", version,
		"db", resolvedCfg.DBPath,
	)

	errCh := make(chan error, 2)

	go func() { errCh <- dispatcher.Run(ctx) }()
	go func() { errCh <- maintenance.Run(ctx) }()

	err = <-errCh
	dispatcher.Wait()

	if ctx.Err() != nil {
		logger.Info("ypsync serve stopped")
		return nil
	}

	return fmt.Errorf("scheduler exited: %w", err)
}
