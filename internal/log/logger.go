package log

// Logger is the leveled, printf-style logging interface shared by every component. Messages follow
// the "<component>: <event>: key=value ..." convention.
type Logger interface {
	// Debug traces fine-grained behavior, such as individual cache lookups.
	Debug(format string, v ...interface{})

	// Info reports routine events, such as upstream queries.
	Info(format string, v ...interface{})

	// Warn reports recoverable divergences, such as a thin registry without a referral.
	Warn(format string, v ...interface{})

	// Error reports failures.
	Error(format string, v ...interface{})

	// Level returns the configured verbosity.
	Level() Level
}

// NopLogger discards every message.
type NopLogger struct{}

// NewNopLogger creates a logger that discards every message.
func NewNopLogger() Logger {
	return NopLogger{}
}

// Debug discards the message.
func (NopLogger) Debug(format string, v ...interface{}) {}

// Info discards the message.
func (NopLogger) Info(format string, v ...interface{}) {}

// Warn discards the message.
func (NopLogger) Warn(format string, v ...interface{}) {}

// Error discards the message.
func (NopLogger) Error(format string, v ...interface{}) {}

// Level reports Error, the least verbose level.
func (NopLogger) Level() Level {
	return Error
}
