// Package logging provides structured logging for autobuild on top of
// log/slog, plus the coloured console printer used for user-facing
// progress messages.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel is a verbosity threshold. Its values line up with slog's.
type LogLevel int

const (
	LevelDebug = LogLevel(slog.LevelDebug)
	LevelInfo  = LogLevel(slog.LevelInfo)
	LevelWarn  = LogLevel(slog.LevelWarn)
	LevelError = LogLevel(slog.LevelError)

	levelOff = LevelError + 4
)

func (l LogLevel) String() string {
	return slog.Level(l).String()
}

var levelNames = map[string]LogLevel{
	"":        LevelInfo,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel converts a --log-level value into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}

// Logger is the structured logger handed to every component.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig selects the level, encoding and destination of a logger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// AutobuildLogger implements Logger with a *slog.Logger.
type AutobuildLogger struct {
	sl *slog.Logger
}

// NewLogger builds a logger from config. A nil config logs text at info
// level to stderr.
func NewLogger(config *LoggerConfig) *AutobuildLogger {
	cfg := LoggerConfig{Level: LevelInfo, Format: "text", Output: os.Stderr}
	if config != nil {
		cfg = *config
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slog.Level(cfg.Level), AddSource: cfg.AddSource}
	var h slog.Handler = slog.NewTextHandler(cfg.Output, opts)
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(cfg.Output, opts)
	}

	sl := slog.New(h)
	if cfg.Component != "" {
		sl = sl.With("component", cfg.Component)
	}
	return &AutobuildLogger{sl: sl}
}

// Nop returns a logger that discards everything.
func Nop() *AutobuildLogger {
	return NewLogger(&LoggerConfig{Level: levelOff, Output: io.Discard})
}

func (l *AutobuildLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelDebug, nil, msg, fields)
}

func (l *AutobuildLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelInfo, nil, msg, fields)
}

func (l *AutobuildLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelWarn, err, msg, fields)
}

func (l *AutobuildLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelError, err, msg, fields)
}

// With returns a child logger that adds fields to every record.
func (l *AutobuildLogger) With(fields ...interface{}) Logger {
	return &AutobuildLogger{sl: l.sl.With(fields...)}
}

// WithComponent tags every record of the child logger with component.
func (l *AutobuildLogger) WithComponent(component string) Logger {
	return &AutobuildLogger{sl: l.sl.With("component", component)}
}

func (l *AutobuildLogger) emit(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.sl.Enabled(ctx, level) {
		return
	}
	if err != nil {
		fields = append([]interface{}{"error", err.Error()}, fields...)
	}
	l.sl.Log(ctx, level, msg, fields...)
}
