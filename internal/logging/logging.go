package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

// NewLogger builds the "drr" logger. format is "console" (default) or
// "json". Output goes to stderr so stdout stays free for results.
func NewLogger(level string, format string) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	switch format {
	case "":
		format = "console"
	case "console", "json":
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	encoder := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "console" {
		encoder.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	config := zap.Config{
		Level:             zap.NewAtomicLevelAt(zapLevel),
		Encoding:          format,
		EncoderConfig:     encoder,
		DisableStacktrace: zapLevel > zapcore.DebugLevel,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger.Named("drr")}, nil
}

// From wraps l; a nil l discards everything.
func From(l *zap.Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{Logger: l}
}

func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Quiet raises the minimum level to warn, dropping progress output while
// keeping warnings and errors.
func (l *Logger) Quiet() *Logger {
	return &Logger{Logger: l.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))}
}

func (l *Logger) WithModelID(modelID string) *Logger {
	return &Logger{Logger: l.With(zap.String("model_id", modelID))}
}

// WithAxis scopes progress for axis index (1-based) of ndim: "axis" counts
// build order from 1, since axes are built from ndim down to 2.
func (l *Logger) WithAxis(index, ndim int) *Logger {
	return &Logger{Logger: l.With(
		zap.Int("axis", ndim-index+1),
		zap.Int("of", ndim),
		zap.Int("index", index),
	)}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With(zap.Error(err))}
}
