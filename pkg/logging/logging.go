package logging

import (
	"github.com/canopy-network/nimiqx/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger from LOG_LEVEL and LOG_ENCODING.
func New() (*zap.Logger, error) {
	return NewWithLevel(utils.Env("LOG_LEVEL", "info"), utils.Env("LOG_ENCODING", "json"))
}

// NewWithLevel is New with explicit settings, used when flags override the environment.
func NewWithLevel(level, encoding string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = encoding
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l, nil
}
