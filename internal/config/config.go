// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ypsync. The override chain is
// defaults -> config file -> environment -> CLI flags, and unknown keys in
// the file are fatal with "did you mean?" suggestions.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	// DBPath is the SQLite database file. Empty means the platform data
	// directory.
	DBPath string `toml:"db_path"`

	Logging    LoggingConfig    `toml:"logging"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Sync       SyncConfig       `toml:"sync"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// LogFormat is auto, text, or json. auto picks text on a terminal and
	// json otherwise.
	LogFormat string `toml:"log_format"`

	// LogFile receives a copy of the log output when set.
	LogFile string `toml:"log_file"`
}

// DispatcherConfig controls the cron dispatch loop.
type DispatcherConfig struct {
	// Tick is the schedule poll interval.
	Tick Duration `toml:"tick"`

	// ExecutionWindow is how far past a cron firing may lie and still be
	// dispatched.
	ExecutionWindow Duration `toml:"execution_window"`

	// MaxJobs bounds the number of sync jobs in flight at once.
	MaxJobs int64 `toml:"max_jobs"`
}

// SyncConfig controls the sync engine.
type SyncConfig struct {
	// MaxDepth caps share tree recursion. Zero means the engine default.
	MaxDepth int `toml:"max_depth"`

	// DefaultSpeed is the speed class applied to configs that do not set
	// their own.
	DefaultSpeed int `toml:"default_speed"`

	// ResourceRefreshWindow is how far ahead of expiry catalogued resource
	// shares are re-created.
	ResourceRefreshWindow Duration `toml:"resource_refresh_window"`
}

// Duration is a time.Duration that decodes from a TOML string like "5m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty string means not specified.
type CLIOverrides struct {
	ConfigPath string // --config-file flag
	DBPath     string // --db flag
	LogLevel   string // --verbose / --quiet
	LogFormat  string // --json
}
