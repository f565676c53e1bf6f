// Package logging builds the zap loggers used by noipsensor.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar overrides the level passed to New when set.
const LevelEnvVar = "NOIP_LOG_LEVEL"

// Logging modes accepted by the platform and device "logging" settings.
const (
	ModeStandard = "standard"
	ModeDebug    = "debug"
	ModeNone     = "none"
)

// ParseLevel converts "debug", "info", "warn" or "error" to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// New builds a console logger writing to stderr.
//
// The returned logger is the root: platforms and devices narrow it with Narrow,
// so a root at debug level lets the "logging" settings decide what is shown.
func New(level string) (*zap.Logger, error) {
	if env := os.Getenv(LevelEnvVar); env != "" {
		level = env
	}
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Narrow applies a logging mode to logger.
// "none" silences it, "debug" leaves it alone, and anything else drops debug entries.
func Narrow(logger *zap.Logger, mode string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeNone:
		return zap.NewNop()
	case ModeDebug:
		return logger
	}
	// IncreaseLevel complains when asked to lower a level, so only wrap cores that let debug through.
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		return logger
	}
	return logger.WithOptions(zap.IncreaseLevel(zapcore.InfoLevel))
}
