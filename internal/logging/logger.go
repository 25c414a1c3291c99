// Package logging wraps log/slog with the default fields and level/format
// selection this library's components share.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/knxnetip/internal/config"
)

// Logger wraps slog.Logger. Its Debug/Info/Warn/Error(msg string, kv ...any)
// methods (inherited from the embedded *slog.Logger) satisfy every
// component-local Logger interface in this module (routing.Logger,
// tunnel.Logger, gacache.Logger, ...).
type Logger struct {
	*slog.Logger
}

// New builds a Logger from cfg: JSON or text output, level filtering, and a
// "component" default field identifying which part of the library emitted
// the record.
func New(cfg config.LoggingConfig, component string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	if component != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("component", component)})
	}

	return &Logger{Logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON/info logger for use before configuration loads.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "")
}
