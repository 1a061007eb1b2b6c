package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_FullFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
db_path = "/var/lib/ypsync/ypsync.db"

[logging]
log_level = "debug"
log_format = "json"

[dispatcher]
tick = "30s"
execution_window = "3m"
max_jobs = 4

[sync]
max_depth = 20
default_speed = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ypsync/ypsync.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.Tick.Std())
	assert.Equal(t, 3*time.Minute, cfg.Dispatcher.ExecutionWindow.Std())
	assert.Equal(t, int64(4), cfg.Dispatcher.MaxJobs)
	assert.Equal(t, 20, cfg.Sync.MaxDepth)
	assert.Equal(t, 2, cfg.Sync.DefaultSpeed)
}

func TestLoad_UnsetFieldsKeepDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[logging]
log_level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.LogLevel)
	assert.Equal(t, "auto", cfg.Logging.LogFormat)
	assert.Equal(t, time.Minute, cfg.Dispatcher.Tick.Std())
	assert.Equal(t, 5*time.Minute, cfg.Dispatcher.ExecutionWindow.Std())
	assert.Equal(t, int64(8), cfg.Dispatcher.MaxJobs)
	assert.Equal(t, 50, cfg.Sync.MaxDepth)
}

func TestLoad_UnknownKeySuggests(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[logging]
log_lvl = "debug"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_lvl")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoad_BadDuration(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[dispatcher]
tick = "fast"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.LogLevel = "trace" },
			wantErr: "log_level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.LogFormat = "xml" },
			wantErr: "log_format",
		},
		{
			name:    "zero tick",
			mutate:  func(c *Config) { c.Dispatcher.Tick = 0 },
			wantErr: "tick",
		},
		{
			name: "window shorter than tick",
			mutate: func(c *Config) {
				c.Dispatcher.Tick = Duration(time.Minute)
				c.Dispatcher.ExecutionWindow = Duration(30 * time.Second)
			},
			wantErr: "execution_window",
		},
		{
			name:    "zero max jobs",
			mutate:  func(c *Config) { c.Dispatcher.MaxJobs = 0 },
			wantErr: "max_jobs",
		},
		{
			name:    "zero max depth",
			mutate:  func(c *Config) { c.Sync.MaxDepth = 0 },
			wantErr: "max_depth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, Validate(DefaultConfig()), "defaults validate")
}

func TestResolve_OverrideChain(t *testing.T) {
	path := writeConfig(t, `
db_path = "/from/file.db"

[logging]
log_level = "info"
`)

	// Config file only.
	cfg, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/file.db", cfg.DBPath)

	// Environment beats the file.
	cfg, err = Resolve(EnvOverrides{ConfigPath: path, DBPath: "/from/env.db"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.DBPath)

	// CLI beats everything.
	cfg, err = Resolve(
		EnvOverrides{ConfigPath: path, DBPath: "/from/env.db"},
		CLIOverrides{DBPath: "/from/cli.db", LogLevel: "debug"},
	)
	require.NoError(t, err)
	assert.Equal(t, "/from/cli.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
}

func TestResolve_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Resolve(EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "absent.toml")}, CLIOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.LogLevel)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestDefaultPaths(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("XDG variables do not apply on darwin")
	}

	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	assert.Equal(t, "/tmp/xdg-config/ypsync/config.toml", DefaultConfigPath())
	assert.Equal(t, "/tmp/xdg-data/ypsync/ypsync.db", DefaultDBPath())
}
