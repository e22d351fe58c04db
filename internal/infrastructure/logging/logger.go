package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/brokerlink/internal/infrastructure/config"
)

const serviceName = "brokerlink"

// redacted replaces the value of attributes that may carry secrets.
const redacted = "[redacted]"

// secretKeys are attribute keys whose values never reach the log.
var secretKeys = map[string]bool{
	"token":       true,
	"password":    true,
	"private_key": true,
}

// Logger is the process logger. Every record carries the service name and
// build version.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by cfg. Output "stderr" writes to
// standard error, anything else to standard output; format "text" selects
// the text handler, anything else JSON.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return &Logger{Logger: slog.New(newHandler(w, cfg, version))}
}

func newHandler(w io.Writer, cfg config.LoggingConfig, version string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel maps debug, info, warn (or warning) and error onto slog
// levels. Anything else is info.
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

// With returns a child logger that adds args to every record, typically a
// component name:
//
//	linkLogger := logger.With("component", "link")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used until the configuration has been loaded: JSON
// on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
}
