package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the application logger. It embeds *slog.Logger so callers log
// with key/value pairs: logger.Info("msg", "key", value).
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing to stdout. level is one of debug, info,
// warn or error; format is "json" or "text".
func NewLogger(level, format string) *Logger {
	return New(os.Stdout, level, format)
}

// New creates a Logger writing to w.
func New(w io.Writer, level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(NewCorrelationHandler(h))}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a config string to a slog level. Unknown values are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
