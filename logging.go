package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/ypsync/ypsync/internal/config"
)

// buildLogger creates the process logger from the resolved logging config.
// Format auto picks text on a terminal and JSON otherwise, so piped and
// service output stays machine-readable.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("cannot open log file, logging to stderr only",
				slog.String("path", cfg.LogFile),
				slog.String("error", err.Error()),
			)
		} else {
			w = io.MultiWriter(os.Stderr, f)
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	useText := cfg.LogFormat == "text"
	if cfg.LogFormat == "auto" {
		useText = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	}

	if useText {
		return slog.New(slog.NewTextHandler(w, opts))
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}
