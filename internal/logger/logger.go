// Package logger builds the structured logger shared by the HTTP server,
// background workers and the audit recorder.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a sugared zap logger.  Production JSON output is used unless
// env is "dev", in which case the console encoder is used.  LOG_LEVEL=debug
// lowers the level in either mode.
func New(env string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(env, "dev") {
		cfg = zap.NewDevelopmentConfig()
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}
