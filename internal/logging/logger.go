package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment represents the output style of the logger.
type Environment string

const (
	// EnvironmentProduction logs JSON lines, for CI and log collectors.
	EnvironmentProduction Environment = "production"

	// EnvironmentDevelopment logs colored console lines for humans.
	EnvironmentDevelopment Environment = "development"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum enabled logging level (debug, info, warn, error).
	Level string

	// Environment determines the log format (production = JSON, development = console).
	Environment Environment

	// OutputPaths is a list of URLs or file paths to write logging output to.
	OutputPaths []string

	// ErrorOutputPaths is a list of URLs or file paths to write internal logger errors to.
	ErrorOutputPaths []string

	// DisableCaller disables automatic caller information.
	DisableCaller bool
}

// DefaultConfig returns the CLI default: JSON at info level on stderr, so
// stdout stays free for the run report.
func DefaultConfig() Config {
	return Config{
		Level:            "info",
		Environment:      EnvironmentProduction,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// NewLogger creates a new zap logger based on the provided configuration.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Environment == EnvironmentProduction {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	errOutputs := cfg.ErrorOutputPaths
	if len(errOutputs) == 0 {
		errOutputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Environment == EnvironmentDevelopment,
		DisableCaller:     cfg.DisableCaller,
		DisableStacktrace: true,
		Encoding:          encodingFromEnvironment(cfg.Environment),
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  errOutputs,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// encodingFromEnvironment returns the encoding format based on environment.
func encodingFromEnvironment(env Environment) string {
	if env == EnvironmentProduction {
		return "json"
	}
	return "console"
}

// ParseLevel converts a string level to zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	return zapcore.ParseLevel(strings.ToLower(level))
}
