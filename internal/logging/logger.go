// Package logging builds the zap loggers shared by the CLI and the server.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a zap logger. When debug is true it uses the development config
// (console output, debug level); otherwise the production JSON config.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Must is New for command entry points, falling back to a no-op logger.
func Must(debug bool) *zap.Logger {
	logger, err := New(debug)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
