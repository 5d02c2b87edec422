package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/yodamaster/bundy/logconfig"
)

// setupLogger builds the process logger. Records are buffered until the
// stored logging configuration has been applied, so startup messages come
// out with the configured severity in effect. The returned level var is
// what the Logging module's configuration writes to.
func setupLogger(level, format string) (*slog.Logger, *slog.LevelVar, *logconfig.BufferedHandler) {
	levelVar := new(slog.LevelVar)
	if parsed, known := logconfig.ParseSeverity(level); known {
		levelVar.Set(parsed)
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: level == "debug",
	}

	var inner slog.Handler
	switch strings.ToLower(format) {
	case "text":
		inner = slog.NewTextHandler(os.Stdout, opts)
	default:
		inner = slog.NewJSONHandler(os.Stdout, opts)
	}

	buffered := logconfig.NewBufferedHandler(inner)
	logger := slog.New(buffered).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)

	return logger, levelVar, buffered
}
