// Package logger provides structured logging for reldb
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with reldb-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "reldb").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Nop returns a logger that discards everything; the nil-safe fallback for
// components constructed without an explicit logger.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

func orNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return orNop(l).zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return orNop(l).zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return orNop(l).zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return orNop(l).zlog.Error().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := orNop(l).zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

func (l *Logger) component(name string) *Logger {
	return &Logger{zlog: orNop(l).zlog.With().Str("component", name).Logger()}
}

// BufferLogger scopes logging to the buffer pool / page manager
func (l *Logger) BufferLogger() *Logger { return l.component("buffer") }

// BtreeLogger scopes logging to the B+ tree layer
func (l *Logger) BtreeLogger() *Logger { return l.component("btree") }

// TableLogger scopes logging to row-level table operations
func (l *Logger) TableLogger() *Logger { return l.component("table") }

// CatalogLogger scopes logging to the schema manager
func (l *Logger) CatalogLogger() *Logger { return l.component("catalog") }

// ExecLogger scopes logging to the operator/executor layer
func (l *Logger) ExecLogger() *Logger { return l.component("exec") }

// LogOperation logs a timed operation at Debug, or Error if it failed
func (l *Logger) LogOperation(operation string, duration time.Duration, err error) {
	ll := orNop(l)
	if err != nil {
		ll.zlog.Error().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err).
			Msg("operation failed")
		return
	}

	ll.zlog.Debug().
		Str("operation", operation).
		Dur("duration_ms", duration).
		Msg("operation completed")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
