// Package logger builds the sugared zap logger every agent package hangs on
// to as its package-level logg.
package logger

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a development-config sugared logger with colorized
// levels. The agent logs to a terminal, not a collector, so the human
// readable encoder is the right default.
func NewLogger() *zap.SugaredLogger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logger, err := config.Build()
	if err != nil {
		log.Panic(err)
	}

	defer logger.Sync()

	return logger.Sugar()
}
