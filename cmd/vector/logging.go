package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func setupLogger(level, format string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}
