// Package logger builds the zap.SugaredLogger instances used throughout
// blobtree.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar selects between the production and development zap configuration.
// Setting BLOBTREE_ENV=development switches to a human-readable console
// encoder with debug-level output, useful when driving the core from tests
// or an embedder's own development loop.
const EnvVar = "BLOBTREE_ENV"

// New builds a *zap.SugaredLogger tagged with the given service name. The
// service field lets a single process embedding multiple blobtree instances
// (e.g. separate index and temp file-sets) distinguish their log lines.
func New(service string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if os.Getenv(EnvVar) == "development" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fall back to a no-op logger rather than panicking: a logging
		// failure must never prevent the store itself from opening.
		logger = zap.NewNop()
	}

	return logger.With(zap.String("service", service)).Sugar()
}

// NewNop returns a logger that discards everything, useful for tests that
// want to exercise components without asserting on log output.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
