package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Development(t *testing.T) {
	cfg := Config{
		Level:            "debug",
		Environment:      EnvironmentDevelopment,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create development logger: %v", err)
	}

	if logger == nil {
		t.Fatal("Expected non-nil logger")
	}

	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Expected debug level to be enabled")
	}
}

func TestNewLogger_Production(t *testing.T) {
	logger, err := NewLogger(DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create production logger: %v", err)
	}

	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Expected debug level to be disabled at info")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Expected info level to be enabled")
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "invalid"

	_, err := NewLogger(cfg)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}
}

func TestNewLogger_EmptyOutputs(t *testing.T) {
	cfg := Config{Level: "warn", Environment: EnvironmentProduction}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger without outputs: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Expected info level to be disabled at warn")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("Expected default level 'info', got %s", cfg.Level)
	}

	if cfg.Environment != EnvironmentProduction {
		t.Errorf("Expected production environment, got %s", cfg.Environment)
	}

	if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stderr" {
		t.Errorf("Expected output paths [stderr], got %v", cfg.OutputPaths)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
		hasError bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"invalid", zapcore.DebugLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)

			if tt.hasError {
				if err == nil {
					t.Errorf("Expected error for input %s", tt.input)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error for input %s: %v", tt.input, err)
				}
				if level != tt.expected {
					t.Errorf("Expected level %v, got %v", tt.expected, level)
				}
			}
		})
	}
}

func TestFromContext_NoLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected no-op logger when none exists in context")
	}

	// Should not panic
	logger.Info("test message")
}

func TestAddFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	ctx = AddFields(ctx, zap.String(FieldTenantID, "abc123"))
	FromContext(ctx).Info("provisioning")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()[FieldTenantID]; got != "abc123" {
		t.Errorf("Expected tenant_id field 'abc123', got %v", got)
	}
}
