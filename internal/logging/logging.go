// Package logging configures the process-wide zap logger once at startup,
// the way cmd/kafka-to-postgresql-v2/main.go's InitLogging does: a sugared
// logger whose level comes from config, installed as the global zap logger
// so every package can log through zap.S() without threading a logger
// reference everywhere ambient logging is needed.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds and installs a *zap.SugaredLogger at the given level
// ("DEBUG", "INFO", "PRODUCTION"/"WARN", "ERROR" — case-insensitive).
func New(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "PRODUCTION":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
