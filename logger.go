package axisdb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with axisdb-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithArray adds the array location to the logger.
func (l *Logger) WithArray(uri string) *Logger {
	return &Logger{
		Logger: l.Logger.With("array", uri),
	}
}

// WithLabel adds a dimension label name to the logger.
func (l *Logger) WithLabel(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("label", name),
	}
}

// WithDimension adds a dimension index to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// LogRangeQueries logs the resolution of label ranges into index ranges.
func (l *Logger) LogRangeQueries(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "range queries failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "range queries completed",
			"count", count,
		)
	}
}

// LogDataQueries logs the label-value data queries of one parent query.
func (l *Logger) LogDataQueries(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "label data queries failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "label data queries completed",
			"count", count,
		)
	}
}

// LogSubmit logs a parent query submission.
func (l *Logger) LogSubmit(ctx context.Context, uri string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"array", uri,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"array", uri,
		)
	}
}

// LogWrite logs a fragment-producing write.
func (l *Logger) LogWrite(ctx context.Context, uri, fragment string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write failed",
			"array", uri,
			"fragment", fragment,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "write completed",
			"array", uri,
			"fragment", fragment,
		)
	}
}
