// Package logging defines the key/value logger the artifact pipeline
// reports through, with a no-op default and a log/slog adapter.
package logging

import (
	"context"
	"log/slog"
)

// Logger provides structured logging for artifact operations.
// This interface allows callers to plug in their own logging implementation.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger is a Logger implementation that does nothing.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &noopLogger{}
}

// OrNop returns l, or the no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Slog adapts a *slog.Logger.
type Slog struct {
	logger *slog.Logger
}

// NewSlog wraps logger. A nil logger uses slog.Default().
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger}
}

func (s *Slog) Debug(msg string, keysAndValues ...interface{}) {
	s.logger.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

func (s *Slog) Info(msg string, keysAndValues ...interface{}) {
	s.logger.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

func (s *Slog) Warn(msg string, keysAndValues ...interface{}) {
	s.logger.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

func (s *Slog) Error(msg string, keysAndValues ...interface{}) {
	s.logger.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}
