// ABOUTME: Logger construction from logging configuration
// ABOUTME: Fans out to a primary handler plus an optional JSON log file via slog-multi

package config

import (
	"fmt"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel converts a config level string into a slog.Level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BuildLogger creates a logger from the logging config. primary overrides
// the stdout handler (the server CLI passes its colorized handler for text
// format); nil picks a text or JSON handler per cfg.Format. If cfg.File is
// set, a JSON handler is fanned out to it as well. The returned cleanup
// closes the file.
func BuildLogger(cfg LoggingConfig, primary slog.Handler) (*slog.Logger, func() error, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if primary == nil {
		if cfg.Format == "json" {
			primary = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			primary = slog.NewTextHandler(os.Stdout, opts)
		}
	}

	if cfg.File == "" {
		return slog.New(primary), func() error { return nil }, nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(file, opts)
	logger := slog.New(slogmulti.Fanout(primary, fileHandler))

	return logger, file.Close, nil
}
