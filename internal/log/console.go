package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ConsoleLogger is a simple, leveled, standard output logging engine.
type ConsoleLogger struct {
	level  Level
	engine zerolog.Logger
}

// NewConsoleLogger creates a logger limited to the specified level. Only log messages that are less
// verbose than the specified level are logged.
func NewConsoleLogger(level Level) Logger {
	return NewWriterLogger(os.Stdout, level)
}

// NewWriterLogger creates a console-formatted logger that writes to an arbitrary destination.
func NewWriterLogger(out io.Writer, level Level) Logger {
	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05",
	}

	return &ConsoleLogger{
		level:  level,
		engine: zerolog.New(writer).Level(level.zerolog()).With().Timestamp().Logger(),
	}
}

// Debug logs a debug message, if permitted by the current level.
func (l *ConsoleLogger) Debug(format string, v ...interface{}) {
	l.engine.Debug().Msgf(format, v...)
}

// Info logs an informational message, if permitted by the current level.
func (l *ConsoleLogger) Info(format string, v ...interface{}) {
	l.engine.Info().Msgf(format, v...)
}

// Warn logs a warning message, if permitted by the current level.
func (l *ConsoleLogger) Warn(format string, v ...interface{}) {
	l.engine.Warn().Msgf(format, v...)
}

// Error logs an error message, if permitted by the current level.
func (l *ConsoleLogger) Error(format string, v ...interface{}) {
	l.engine.Error().Msgf(format, v...)
}

// Level reads the current logging level.
func (l *ConsoleLogger) Level() Level {
	return l.level
}
