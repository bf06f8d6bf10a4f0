package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"example.com/h3mux/internal/config"
)

// LogFields carries structured key/value context for a log entry.
type LogFields map[string]interface{}

// Logger wraps a zerolog.Logger behind the field-map call style used
// throughout the codebase. A nil *Logger is valid and discards everything,
// so library code never has to guard its log calls.
type Logger struct {
	zl     zerolog.Logger
	output io.Closer // non-nil only for file targets
}

// New creates a Logger from configuration. Target selects stdout, stderr,
// or an append-mode file; Format selects JSON or human-readable console
// output.
func New(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	var w io.Writer
	var closer io.Closer
	switch {
	case cfg.Target == "stdout":
		w = os.Stdout
	case cfg.Target == "stderr", cfg.Target == "":
		w = os.Stderr
	case config.IsFilePath(cfg.Target):
		file, err := os.OpenFile(cfg.Target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Target, err)
		}
		w = file
		closer = file
	default:
		return nil, fmt.Errorf("invalid log target: %s", cfg.Target)
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(w).Level(zerologLevel(cfg.LogLevel)).With().Timestamp().Logger()
	return &Logger{zl: zl, output: closer}, nil
}

// NewWithWriter creates a JSON Logger writing to w, primarily for tests.
func NewWithWriter(w io.Writer, level config.LogLevel) *Logger {
	zl := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Nop returns a Logger that discards all entries.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelInfo:
		return zerolog.InfoLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields []LogFields) {
	for _, fm := range fields {
		for k, v := range fm {
			ev = ev.Interface(k, v)
		}
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...LogFields) {
	if l == nil {
		return
	}
	l.emit(l.zl.Error(), msg, fields)
}

// With returns a child logger carrying fields on every subsequent entry.
func (l *Logger) With(fields LogFields) *Logger {
	if l == nil {
		return nil
	}
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger(), output: l.output}
}

// Access writes one access-log entry for a completed request.
func (l *Logger) Access(method, path string, streamID uint32, status int, responseBytes int, duration time.Duration) {
	if l == nil {
		return
	}
	l.zl.Info().
		Str("method", method).
		Str("path", path).
		Uint32("stream_id", streamID).
		Int("status", status).
		Int("resp_bytes", responseBytes).
		Dur("duration", duration).
		Msg("request")
}

// Close releases the log file if one was opened. Safe on loggers bound to
// the standard streams.
func (l *Logger) Close() error {
	if l == nil || l.output == nil {
		return nil
	}
	return l.output.Close()
}
