package logging

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with call-platform specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger at the given level ("debug", "info", "warn", "error").
func New(level string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return &Logger{Logger: slog.New(handler)}
}

// Default returns an info-level logger.
func Default() *Logger {
	return New("info")
}

// WithCall returns a logger scoped to a single phone call. Every line it
// emits carries the call SID and the caller's number.
func (l *Logger) WithCall(callSID, caller string) *Logger {
	return &Logger{Logger: l.Logger.With("call_sid", callSID, "caller", caller)}
}

// With returns a logger with extra attributes attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
