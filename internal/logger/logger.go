// Package logger builds the zerolog loggers used by the binaries and
// carries loggers and correlation IDs through contexts.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LoggingConfig mirrors config.LoggingConfig to avoid a circular import.
type LoggingConfig struct {
	Level     string
	Output    string // stdout (default), stderr, file
	Format    string // json (default), console
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
}

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
)

// New creates a zerolog.Logger with the specified level and JSON output.
// If the level string is invalid, it defaults to info.
func New(level string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewFromConfig creates a zerolog.Logger from a LoggingConfig, selecting the
// output writer based on cfg.Output:
//   - "file": rotating file via lumberjack
//   - "stderr": os.Stderr, used by the CLI whose stdout carries results
//   - "stdout" or any other value: os.Stdout
//
// Format "console" renders human-readable lines instead of JSON.
func NewFromConfig(cfg LoggingConfig) zerolog.Logger {
	var writer io.Writer
	switch cfg.Output {
	case "file":
		writer = NewFileWriter(FileConfig{
			Path:      cfg.FilePath,
			MaxSizeMB: cfg.MaxSizeMB,
			MaxFiles:  cfg.MaxFiles,
		})
	case "stderr":
		writer = os.Stderr
	default:
		writer = os.Stdout
	}
	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: cfg.Output == "file"}
	}

	return zerolog.New(writer).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from the context.
// Returns an empty string if not set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext retrieves the logger from the context. If a correlation ID is
// present, it is attached to the returned logger. Without a stored logger
// it returns a disabled one.
func FromContext(ctx context.Context) zerolog.Logger {
	log := zerolog.Nop()
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		log = l
	}

	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}
	return log
}

// NewCorrelationID generates a new UUID-based correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}
