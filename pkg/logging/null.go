package logging

import "context"

var _ Logger = (*NullLogger)(nil)

// NullLogger drops every entry. Components built without a logger fall
// back to it through OrNull, and the CLI uses it when logging is
// disabled in the config.
type NullLogger struct{}

// NewNullLogger creates a new null logger
func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

// OrNull returns l, or a NullLogger when l is nil
func OrNull(l Logger) Logger {
	if l == nil {
		return NewNullLogger()
	}
	return l
}

func (*NullLogger) Debug(context.Context, string, Fields) {}
func (*NullLogger) Info(context.Context, string, Fields)  {}
func (*NullLogger) Warn(context.Context, string, Fields)  {}

func (*NullLogger) Error(context.Context, string, error, Fields) {}

// WithFields ignores fields; there is nothing to attach them to
func (l *NullLogger) WithFields(Fields) Logger {
	return l
}

func (*NullLogger) Close() error {
	return nil
}
