package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging interface used across the bot runtime.
// It wraps zap so that packages depend on a small surface instead of the
// full zap API.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
	Named(name string) Logger
	Sync() error
}

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error, fatal.
	Level string `yaml:"level"`
	// Format is "console" or "json". JSON implies production encoding.
	Format string `yaml:"format"`
	// Development enables caller annotation and debug-friendly output.
	Development bool `yaml:"development"`
}

type zapLogger struct {
	zap *zap.Logger
}

// New creates a logger from the given configuration.
func New(config Config) Logger {
	level := parseLevel(config.Level)

	var zl *zap.Logger
	if config.Format == "json" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		zl, _ = cfg.Build(zap.AddCallerSkip(1))
	} else {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		if config.Development {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		zl, _ = cfg.Build(zap.AddCallerSkip(1))
	}

	return &zapLogger{zap: zl}
}

// NewDevelopment creates a debug-level console logger.
func NewDevelopment() Logger {
	return New(Config{Level: "debug", Development: true})
}

// NewProduction creates an info-level JSON logger.
func NewProduction() Logger {
	return New(Config{Level: "info", Format: "json"})
}

// NewNoop creates a logger that discards everything. Intended for tests.
func NewNoop() Logger {
	return &zapLogger{zap: zap.NewNop()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.zap.Debug(msg, fieldsToZap(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.zap.Info(msg, fieldsToZap(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.zap.Warn(msg, fieldsToZap(fields)...)
}

func (l *zapLogger) Error(msg string, fields ...Field) {
	l.zap.Error(msg, fieldsToZap(fields)...)
}

func (l *zapLogger) Fatal(msg string, fields ...Field) {
	l.zap.Fatal(msg, fieldsToZap(fields)...)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{zap: l.zap.With(fieldsToZap(fields)...)}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{zap: l.zap.Named(name)}
}

func (l *zapLogger) Sync() error {
	return l.zap.Sync()
}

func fieldsToZap(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if field != nil {
			zapFields = append(zapFields, field.ZapField())
		}
	}
	return zapFields
}
