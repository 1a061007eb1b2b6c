package config

import (
	"errors"
	"fmt"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"auto": true, "text": true, "json": true,
}

// Validate checks the parsed configuration for values that would misbehave
// at runtime. It collects all problems rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.Logging.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.Logging.LogLevel))
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format %q is not one of auto, text, json", cfg.Logging.LogFormat))
	}

	if cfg.Dispatcher.Tick.Std() <= 0 {
		errs = append(errs, errors.New("dispatcher.tick must be positive"))
	}

	if cfg.Dispatcher.ExecutionWindow.Std() < cfg.Dispatcher.Tick.Std() {
		errs = append(errs, errors.New("dispatcher.execution_window must be at least dispatcher.tick, or firings will be missed"))
	}

	if cfg.Dispatcher.MaxJobs < 1 {
		errs = append(errs, errors.New("dispatcher.max_jobs must be at least 1"))
	}

	if cfg.Sync.MaxDepth < 1 {
		errs = append(errs, errors.New("sync.max_depth must be at least 1"))
	}

	if cfg.Sync.DefaultSpeed < 0 {
		errs = append(errs, errors.New("sync.default_speed must not be negative"))
	}

	if cfg.Sync.ResourceRefreshWindow.Std() <= 0 {
		errs = append(errs, errors.New("sync.resource_refresh_window must be positive"))
	}

	return errors.Join(errs...)
}
