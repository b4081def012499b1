// Package logger wraps zerolog behind the small printf-style API the
// services were written against.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	level            = zerolog.InfoLevel
)

// Configure sets the process-wide level and output format ("json" or
// "console"). Loggers created afterwards pick up the new settings.
func Configure(lvl, format string) {
	mu.Lock()
	defer mu.Unlock()

	level = ParseLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	if strings.EqualFold(format, "json") {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
}

// ParseLevel converts a level name to a zerolog level, defaulting to info
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(lvl) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type Logger struct {
	zl zerolog.Logger
}

// New returns a logger tagged with the service name
func New(service string) *Logger {
	mu.RLock()
	w, lvl := output, level
	mu.RUnlock()
	return NewWithWriter(service, w, lvl)
}

// NewWithWriter is New with an explicit sink, used by tests
func NewWithWriter(service string, w io.Writer, lvl zerolog.Level) *Logger {
	zl := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
	return &Logger{zl: zl}
}

// Nop discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying an extra field
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// Zerolog exposes the underlying logger for structured call sites
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// Fatal logs and exits with status 1
func (l *Logger) Fatal(msg string) {
	l.zl.WithLevel(zerolog.FatalLevel).Msg(msg)
	os.Exit(1)
}

// Fatalf logs and exits with status 1
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.zl.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprintf(format, args...))
	os.Exit(1)
}
