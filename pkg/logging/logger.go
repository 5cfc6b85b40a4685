// Package logging provides the structured logger shared by the sieve, the
// symmetry scorer and the command line driver.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"
)

// Logger wraps slog.Logger with helpers for the segmentation pipeline.
type Logger struct {
	*slog.Logger
}

// Config selects the handler and destination of a Logger.
type Config struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`

	// Format is text or json
	Format string `yaml:"format"`

	// File sends log output to a rotating file instead of stderr
	File string `yaml:"file"`

	// MaxSize is the rotation size of File in megabytes
	MaxSize int `yaml:"maxSize"`

	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"maxAge"`
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// New builds a Logger from cfg. When cfg.File is set, output goes to a
// lumberjack rotating writer.
func New(cfg Config) *Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  cfg.MaxSize, // megabytes
			MaxAge:   cfg.MaxAge,  // days
		}
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return NewLogger(slog.NewJSONHandler(w, opts))
	}
	return NewLogger(slog.NewTextHandler(w, opts))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l *Logger) *Logger {
	if l == nil {
		return NoopLogger()
	}
	return l
}

// ParseLevel maps a config level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithStage adds a pipeline stage field to the logger.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{Logger: l.Logger.With("stage", stage)}
}

// LogLabel logs the outcome of per-slice labeling.
func (l *Logger) LogLabel(ctx context.Context, slices, regions int) {
	l.DebugContext(ctx, "labeling completed",
		"slices", slices,
		"regions", regions,
	)
}

// LogTrain logs a model training run.
func (l *Logger) LogTrain(ctx context.Context, volumes, regions, features int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "training failed",
			"volumes", volumes,
			"regions", regions,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "training completed",
		"volumes", volumes,
		"regions", regions,
		"features", features,
	)
}

// LogSieve logs a sieving run.
func (l *Logger) LogSieve(ctx context.Context, regions, removed, voxelsRemoved int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sieve failed",
			"regions", regions,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "sieve completed",
		"regions", regions,
		"removed", removed,
		"voxels_removed", voxelsRemoved,
	)
}

// LogScore logs a symmetry scoring run.
func (l *Logger) LogScore(ctx context.Context, slices, paired, total int, score float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "symmetry score failed",
			"slices", slices,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "symmetry score computed",
		"slices", slices,
		"paired", paired,
		"foreground", total,
		"score", score,
	)
}

// LogSave logs writing an artifact of size bytes to disk.
func (l *Logger) LogSave(ctx context.Context, kind, filename string, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"kind", kind,
			"filename", filename,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "saved",
		"kind", kind,
		"filename", filename,
		"size", humanize.Bytes(uint64(size)),
	)
}
