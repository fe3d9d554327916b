package prox1

import (
	"github.com/pkg/errors"

	"avaneesh/prox1-go/pkg/internal/logger"
)

// LogLevel represents logging level
type LogLevel int

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug LogLevel = iota
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn
	// LevelError shows only error messages
	LevelError
)

// SetLogLevel sets the global logging level
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(logger.Level(level)))
}

// EnableFrameDebug enables or disables detailed frame debugging
// When enabled, shows hex dumps of all frames sent and received
func EnableFrameDebug(enable bool) {
	logger.SetFrameDebug(enable)
}

// ConfigureLogging installs a global logger built from cfg and returns it.
func ConfigureLogging(cfg LogConfig) (logger.Logger, error) {
	level, ok := logger.ParseLevel(cfg.Level)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidConfig, "log level %q", cfg.Level)
	}

	log := logger.New(logger.Options{
		Level:      level,
		Format:     cfg.Format,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	logger.SetDefault(log)
	logger.SetFrameDebug(cfg.FrameDebug)
	return log, nil
}
