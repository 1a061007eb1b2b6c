package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ypsync/ypsync/internal/config"
	"github.com/ypsync/ypsync/internal/store"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagDBPath     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg and rootLogger are populated by PersistentPreRunE and available
// to all subcommands afterward.
var (
	resolvedCfg *config.Config
	rootLogger  *slog.Logger
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ypsync",
		Short:   "Cloud drive share sync engine",
		Long:    "Synchronizes shared cloud drive content into your own drive on a schedule.",
		Version: version,
		// Cobra's default error/usage printing is handled in main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config-file", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newConfigsCmd())
	cmd.AddCommand(newTasksCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and builds the process logger.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		DBPath:     flagDBPath,
	}

	// CLI flags override config-file log settings.
	if flagVerbose {
		cli.LogLevel = "debug"
	}

	if flagQuiet {
		cli.LogLevel = "error"
	}

	if flagJSON {
		cli.LogFormat = "json"
	}

	cfg, err := config.Resolve(config.ReadEnv(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg
	rootLogger = buildLogger(cfg.Logging)

	return nil
}

// openStore opens the SQLite database named by the resolved config, creating
// its directory on first run.
func openStore() (*store.Store, error) {
	if dir := filepath.Dir(resolvedCfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	return store.Open(resolvedCfg.DBPath, rootLogger)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
