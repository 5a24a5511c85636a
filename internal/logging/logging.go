// Package logging builds the zap loggers used by both endpoints.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level ("debug", "info", ...) and encoding ("console" or
// "json").
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FromEnv fills empty fields from LOG_LEVEL and LOG_FORMAT, then from defaults.
func (c Config) FromEnv() Config {
	if c.Level == "" {
		c.Level = os.Getenv("LOG_LEVEL")
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = os.Getenv("LOG_FORMAT")
	}
	if c.Format == "" {
		c.Format = "console"
	}
	return c
}

// New returns a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	cfg = cfg.FromEnv()
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = level > zapcore.DebugLevel
	return zc.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
