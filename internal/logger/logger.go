// Package logger owns the process-wide hclog.Logger.
// Components should take a named logger from Named; the package-level helpers
// exist for call sites that have no logger of their own.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/geneseez/geneseez/internal/config"
	"github.com/hashicorp/go-hclog"
)

var (
	root   hclog.Logger = hclog.New(&hclog.LoggerOptions{Name: "geneseez", Level: hclog.Info})
	rootMu sync.RWMutex
)

// New builds a logger from the logging section of the configuration
func New(cfg config.LoggingConfig, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	color := hclog.ColorOff
	if cfg.EnableColors {
		color = hclog.AutoColor
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:            "geneseez",
		Level:           ParseLevel(cfg.Level),
		Output:          output,
		JSONFormat:      strings.EqualFold(cfg.Format, "json"),
		Color:           color,
		IncludeLocation: false,
	})
}

// ParseLevel maps a config level string to an hclog level, defaulting to info
func ParseLevel(level string) hclog.Level {
	l := hclog.LevelFromString(strings.TrimSpace(level))
	if l == hclog.NoLevel {
		return hclog.Info
	}
	return l
}

// SetDefault replaces the process-wide logger
func SetDefault(l hclog.Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// Default returns the process-wide logger
func Default() hclog.Logger {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Named returns a sub-logger of the process-wide logger
func Named(name string) hclog.Logger {
	return Default().Named(name)
}

// ConfigWatcher applies level changes from a reloaded configuration
func ConfigWatcher(oldConfig, newConfig *config.Config) {
	if oldConfig.Logging.Level == newConfig.Logging.Level {
		return
	}
	l := Default()
	l.SetLevel(ParseLevel(newConfig.Logging.Level))
	l.Info("log level changed", "from", oldConfig.Logging.Level, "to", newConfig.Logging.Level)
}

// Info logs informational messages
func Info(msg string, args ...interface{}) {
	Default().Info(msg, args...)
}

// Warn logs warning messages
func Warn(msg string, args ...interface{}) {
	Default().Warn(msg, args...)
}

// Error logs error messages
func Error(msg string, args ...interface{}) {
	Default().Error(msg, args...)
}

// Debug logs debug messages
func Debug(msg string, args ...interface{}) {
	Default().Debug(msg, args...)
}
