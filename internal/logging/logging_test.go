package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("info", "json")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected Logger, got nil")
	}
	if logger.Logger == nil {
		t.Error("Expected zap.Logger to be initialized")
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger("invalid", "json")
	if err == nil {
		t.Error("Expected error for invalid log level")
	}
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected Logger, got nil")
	}
}

func TestNewLoggerDefaultFormat(t *testing.T) {
	logger, err := NewLogger("warn", "")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Expected Logger, got nil")
	}
}

func TestNewLoggerInvalidFormat(t *testing.T) {
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestFromNil(t *testing.T) {
	logger := From(nil)
	if logger == nil || logger.Logger == nil {
		t.Fatal("Expected a usable logger")
	}
	logger.Info("discarded")
}

func TestQuietDropsInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	quiet := From(zap.New(core)).Quiet()

	quiet.Info("progress")
	quiet.Warn("inverse will be incomplete")

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", logs.Len())
	}
	if logs.All()[0].Message != "inverse will be incomplete" {
		t.Errorf("Unexpected entry %q", logs.All()[0].Message)
	}
}

func TestWithModelID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	From(zap.New(core)).WithModelID("model-123").Info("model stored")

	if got := logs.All()[0].ContextMap()["model_id"]; got != "model-123" {
		t.Errorf("Expected model_id model-123, got %v", got)
	}
}

func TestWithAxis(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.WithAxis(3, 4).Info("constructing axis")

	fields := logs.All()[0].ContextMap()
	want := map[string]int64{"axis": 2, "of": 4, "index": 3}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("Expected %s %d, got %v", k, v, fields[k])
		}
	}
}

func TestWithError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	testErr := errors.New("test error")

	From(zap.New(core)).WithError(testErr).Info("axis failed")

	if got := logs.All()[0].ContextMap()["error"]; got != "test error" {
		t.Errorf("Expected error field, got %v", got)
	}
}
