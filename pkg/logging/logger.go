package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// Level represents log severity
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger defines the interface for logging. The engine components only
// depend on this interface; implementations are file, console and null.
type Logger interface {
	// Debug logs a debug message
	Debug(ctx context.Context, msg string, fields Fields)

	// Info logs an info message
	Info(ctx context.Context, msg string, fields Fields)

	// Warn logs a warning message
	Warn(ctx context.Context, msg string, fields Fields)

	// Error logs an error message
	Error(ctx context.Context, msg string, err error, fields Fields)

	// WithFields returns a logger with additional fields
	WithFields(fields Fields) Logger

	// Close flushes and closes the logger
	Close() error
}

// levelString returns the string representation of a log level
func levelString(level Level) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a log level string
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return DebugLevel
	case "info", "INFO":
		return InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return WarnLevel
	case "error", "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// LevelString returns level as string (exported version)
func LevelString(level Level) string {
	return levelString(level)
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// emit writes one entry through a zerolog logger
func emit(zl *zerolog.Logger, level Level, msg string, err error, fields Fields) {
	var ev *zerolog.Event
	switch level {
	case DebugLevel:
		ev = zl.Debug()
	case WarnLevel:
		ev = zl.Warn()
	case ErrorLevel:
		ev = zl.Error()
	default:
		ev = zl.Info()
	}
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	if len(fields) > 0 {
		ev = ev.Fields(map[string]interface{}(fields))
	}
	ev.Msg(msg)
}

// zeroLogger adapts a zerolog.Logger to Logger
type zeroLogger struct {
	zl     zerolog.Logger
	closer func() error
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, fields Fields) {
	emit(&l.zl, DebugLevel, msg, nil, fields)
}

func (l *zeroLogger) Info(ctx context.Context, msg string, fields Fields) {
	emit(&l.zl, InfoLevel, msg, nil, fields)
}

func (l *zeroLogger) Warn(ctx context.Context, msg string, fields Fields) {
	emit(&l.zl, WarnLevel, msg, nil, fields)
}

func (l *zeroLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	emit(&l.zl, ErrorLevel, msg, err, fields)
}

// WithFields returns a child logger sharing the same output
func (l *zeroLogger) WithFields(fields Fields) Logger {
	return &zeroLogger{
		zl:     l.zl.With().Fields(map[string]interface{}(fields)).Logger(),
		closer: l.closer,
	}
}

func (l *zeroLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
