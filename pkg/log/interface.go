// Package log provides a structured logging interface for shapscale.
//
// This package defines a minimal, slog-compatible logging interface and a
// default implementation backed by the process-wide slog logger installed by
// SetupLogger. Pipeline stages log through it with the attribute keys from
// attributes.go so that one run can be followed across targets and grid sizes.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("analysis").With(
//	    log.TargetKey, "AMT",
//	    log.GridSizeKey, "25",
//	)
//	logger.Info("Attribution finished",
//	    log.SamplesKey, 1000,
//	    log.FeaturesKey, 27,
//	)
package log

import (
	"context"
	"log/slog"
	"sync"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// The interface supports method chaining through the With method, allowing
// for creation of contextual loggers with pre-populated fields.
type Logger interface {
	// Debug logs a debug-level message with optional structured fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional structured fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional structured fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message with optional structured fields.
	// If the first field is an error it is logged under ErrAttrKey, so the
	// stack trace is extracted by ErrFmtHandler.
	//
	// Example:
	//   logger.Error("Model load failed",
	//       err,
	//       log.ModelPathKey, path,
	//   )
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits log records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4 // Detailed diagnostic information
	LevelInfo  Level = 0  // General operational information
	LevelWarn  Level = 4  // Warning conditions
	LevelError Level = 8  // Error conditions
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider defines an interface for creating and configuring loggers.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger with a specific name/component identifier.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}

// slogLogger adapts *slog.Logger to Logger.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l. A nil l follows slog.Default at call time.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

func (s *slogLogger) logger() *slog.Logger {
	if s.l == nil {
		return slog.Default()
	}
	return s.l
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.logger().Debug(msg, fields...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.logger().Info(msg, fields...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.logger().Warn(msg, fields...) }

func (s *slogLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttr(err)}, fields[1:]...)
		}
	}
	s.logger().Error(msg, fields...)
}

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.logger().With(fields...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.logger().Enabled(ctx, slog.Level(level))
}

// defaultProvider hands out loggers bound to slog.Default.
type defaultProvider struct {
	mu       sync.RWMutex
	provider LoggerProvider
}

var global defaultProvider

// SetProvider replaces the provider behind GetLogger and GetLoggerWithName.
// Passing nil restores the slog-backed default.
func SetProvider(p LoggerProvider) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.provider = p
}

// GetLogger returns the process logger.
func GetLogger() Logger {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if global.provider != nil {
		return global.provider.GetLogger()
	}
	return NewSlogLogger(nil)
}

// GetLoggerWithName returns the process logger tagged with ComponentKey=name.
func GetLoggerWithName(name string) Logger {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if global.provider != nil {
		return global.provider.GetLoggerWithName(name)
	}
	return NewSlogLogger(nil).With(ComponentKey, name)
}
