package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/YuminosukeSato/shapscale/pkg/errors"
)

// SetupLogger function setup logger.
func SetupLogger(loglevel string) {
	SetupLoggerWithOutput(loglevel, os.Stdout)
}

// SetupLoggerWithOutput installs the default slog logger writing JSON records
// to w, and routes pkg/errors warnings to a zerolog logger on stderr.
func SetupLoggerWithOutput(loglevel string, w io.Writer) {
	level := ToLogLevel(loglevel)
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		// Replace attributes to convert to CloudLogging format.
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{
					Key:   "severity",
					Value: attr.Value,
				}
			case slog.MessageKey:
				attr = slog.Attr{
					Key:   "message",
					Value: attr.Value,
				}
			case slog.SourceKey:
				attr = slog.Attr{
					Key:   "logging.googleapis.com/sourceLocation",
					Value: attr.Value,
				}
			}
			return attr
		},
	}
	handler := slog.NewJSONHandler(w, &ops)
	errFmtHandler := WrapByErrFmtHandler(handler)
	slog.SetDefault(slog.New(errFmtHandler))

	InstallWarningSink(os.Stderr, level)
}

// FileOutput returns a rotating writer for filename.
// "" means stdout and "/dev/null" discards everything.
func FileOutput(filename string) io.Writer {
	filename = strings.TrimSpace(filename)
	switch filename {
	case "":
		return os.Stdout
	case "/dev/null":
		return io.Discard
	}
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    32, // megabytes
		MaxBackups: 8,
		MaxAge:     15, // days
		Compress:   true,
	}
}

var warnSinkMu sync.Mutex

// InstallWarningSink makes errors.Warn emit through a zerolog logger on w.
// Warnings that implement zerolog.LogObjectMarshaler keep their fields.
func InstallWarningSink(w io.Writer, level slog.Level) {
	warnSinkMu.Lock()
	defer warnSinkMu.Unlock()

	zl := zerolog.New(w).With().Timestamp().Str("logger", "shapscale.warnings").Logger()
	if level > slog.LevelWarn {
		zl = zl.Level(zerolog.ErrorLevel)
	}
	errors.SetZerologWarnFunc(func(warning error) {
		ev := zl.Warn()
		if m, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(m)
		}
		ev.Msg(warning.Error())
	})
}

func ToLogLevel(level string) slog.Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(err.Error())
	}
	return l
}

// ParseLevel is the non-panicking form of ToLogLevel, used for flag input.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level :%s", level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
