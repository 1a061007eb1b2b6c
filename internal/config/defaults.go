package config

import "time"

// Default values, the bottom layer of the override chain.
const (
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"

	defaultTick            = time.Minute
	defaultExecutionWindow = 5 * time.Minute
	defaultMaxJobs         = 8

	defaultMaxDepth              = 50
	defaultResourceRefreshWindow = 24 * time.Hour
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields retain defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Dispatcher: DispatcherConfig{
			Tick:            Duration(defaultTick),
			ExecutionWindow: Duration(defaultExecutionWindow),
			MaxJobs:         defaultMaxJobs,
		},
		Sync: SyncConfig{
			MaxDepth:              defaultMaxDepth,
			ResourceRefreshWindow: Duration(defaultResourceRefreshWindow),
		},
	}
}
