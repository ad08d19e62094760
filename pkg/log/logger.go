package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	bikeErrors "github.com/YuminosukeSato/bikeshare/pkg/errors"
)

var (
	globalMu     sync.RWMutex
	globalLogger = newZerologLogger(os.Stderr, LevelInfo, "json")
)

// ZerologLogger implements Logger on top of rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a Logger writing to w. format is "json" or "console".
func NewZerologLogger(w io.Writer, level Level, format string) *ZerologLogger {
	return newZerologLogger(w, level, format)
}

func newZerologLogger(w io.Writer, level Level, format string) *ZerologLogger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{log: z}
}

// Setup configures the process-wide logger and routes library warnings to it.
func Setup(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	switch format {
	case "", "json":
		format = "json"
	case "console":
	default:
		return bikeErrors.NewConfigError("logging.format", "must be json or console", format)
	}

	logger := newZerologLogger(os.Stderr, lvl, format)
	SetLogger(logger)
	bikeErrors.SetZerologWarnFunc(func(w error) {
		logger.Warn(w.Error(), ErrorKey, w)
	})
	return nil
}

// SetLogger replaces the process-wide logger.
func SetLogger(l *ZerologLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// GetLoggerWithName returns the process-wide logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// ParseLevel converts a configuration string to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, bikeErrors.NewConfigError("logging.level", "must be one of debug, info, warn, error", level)
	}
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Debug implements Logger.
func (l *ZerologLogger) Debug(msg string, fields ...any) {
	emit(l.log.Debug(), msg, fields)
}

// Info implements Logger.
func (l *ZerologLogger) Info(msg string, fields ...any) {
	emit(l.log.Info(), msg, fields)
}

// Warn implements Logger.
func (l *ZerologLogger) Warn(msg string, fields ...any) {
	emit(l.log.Warn(), msg, fields)
}

// Error implements Logger. A leading error argument is logged under "error".
func (l *ZerologLogger) Error(msg string, fields ...any) {
	ev := l.log.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = withError(ev, ErrorKey, err)
			fields = fields[1:]
		}
	}
	emit(ev, msg, fields)
}

// With implements Logger.
func (l *ZerologLogger) With(fields ...any) Logger {
	ctx := l.log.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	return &ZerologLogger{log: ctx.Logger()}
}

// Enabled implements Logger.
func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.log.GetLevel()
}

func emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			ev = withError(ev, key, v)
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// withError records err and, when the error was built with cockroachdb/errors,
// its stack trace and structured detail.
func withError(ev *zerolog.Event, key string, err error) *zerolog.Event {
	ev = ev.Str(key, err.Error())
	if st := extractStacktrace(err); st != "" {
		ev = ev.Str(StacktraceKey, st)
	}
	var m zerolog.LogObjectMarshaler
	if errors.As(err, &m) {
		ev = ev.Object(key+".detail", m)
	}
	return ev
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
