// Package logconfig applies the reserved logging sub-document of the
// configuration to the process logger.
//
// The coordinator invokes the handler on every initial load and on every
// successful global configuration update, with an empty value when no
// logging configuration is present. The first invocation also flushes any
// log records buffered before logging was configured, so early startup
// messages are emitted with the configured severity in effect.
package logconfig

import (
	"log/slog"
	"strings"
)

// ModuleName is the reserved name of the logging sub-document inside the
// configuration. Logging is not a module with its own round trip; its
// updates are applied in-process.
const ModuleName = "Logging"

// Handler applies logging configuration to a slog level.
type Handler struct {
	level    *slog.LevelVar
	buffered *BufferedHandler
	logger   *slog.Logger
}

// New creates a logging-config handler. level is the process-wide level
// the configured severity is written to; buffered, when non-nil, is
// flushed on the first Apply.
func New(level *slog.LevelVar, buffered *BufferedHandler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		level:    level,
		buffered: buffered,
		logger:   logger,
	}
}

// Apply applies a logging sub-document. A nil or empty value applies
// defaults, which still flushes the startup buffer. Unknown severities are
// warned about and ignored.
func (h *Handler) Apply(value any) {
	if cfg, ok := value.(map[string]any); ok {
		if raw, ok := cfg["severity"]; ok {
			if severity, ok := raw.(string); ok {
				if level, known := ParseSeverity(severity); known {
					h.level.Set(level)
					h.logger.Info("Applied logging configuration", "severity", severity)
				} else {
					h.logger.Warn("Ignoring unknown logging severity", "severity", severity)
				}
			} else {
				h.logger.Warn("Logging severity is not a string", "value", raw)
			}
		}
	}

	// Flushing must happen even with no logging configuration present;
	// records buffered before the first apply would otherwise be lost
	if h.buffered != nil {
		h.buffered.Flush()
	}
}

// ParseSeverity maps a configured severity name to a slog level. The
// second return is false for unknown names.
func ParseSeverity(severity string) (slog.Level, bool) {
	switch strings.ToUpper(severity) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR", "FATAL":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
