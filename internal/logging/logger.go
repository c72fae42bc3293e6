package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "BOOTL_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks BOOTL_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	// If no level provided, check environment variable
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	// If still no level, use silent mode (nop logger)
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		// Unknown level - use info as default when explicitly set to something
		zapLevel = zapcore.InfoLevel
	}

	// Reports go to stdout, so logs stay on stderr
	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		logger = zap.NewNop()
	}
	return logger
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogPath logs an enumerated path with its cycle bounds
func LogPath(function uint64, blocks []uint64, minTicks, maxTicks int) {
	Info("Path",
		zap.String("function", hex(function)),
		zap.String("blocks", addrList(blocks)),
		zap.Int("min_ticks", minTicks),
		zap.Int("max_ticks", maxTicks),
	)
}

// LogConstraint logs a constraint derived from a conditional branch
func LogConstraint(branch uint64, expr string, registered bool) {
	Debug("Derived constraint",
		zap.String("branch", hex(branch)),
		zap.String("constraint", expr),
		zap.Bool("registered", registered),
	)
}

// LogSolution logs the solver outcome for one expansion
func LogSolution(pathIndex, expansion int, feasible bool, assignment string) {
	fields := []zap.Field{
		zap.Int("path", pathIndex),
		zap.Int("expansion", expansion),
		zap.Bool("feasible", feasible),
	}
	if feasible {
		fields = append(fields, zap.String("assignment", assignment))
	}
	Info("Solved expansion", fields...)
}

// hex formats an address the way log fields show them
func hex(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

func addrList(addrs []uint64) string {
	if len(addrs) == 0 {
		return ""
	}
	// Limit to the first 64 blocks for logging
	suffix := ""
	if len(addrs) > 64 {
		addrs = addrs[:64]
		suffix = " ..."
	}
	parts := make([]string, len(addrs))
	for n, a := range addrs {
		parts[n] = hex(a)
	}
	return strings.Join(parts, " -> ") + suffix
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
