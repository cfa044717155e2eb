// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// Setup applies level and format to logger and returns the root entry
// services derive their component loggers from.
func Setup(logger *logrus.Logger, cfg config.LogConfig, out io.Writer) (*logrus.Entry, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("bad log format %q (valid: text, json)", cfg.Format)
	}

	if out != nil {
		logger.SetOutput(out)
	}
	return logrus.NewEntry(logger).WithField("app", "kin"), nil
}
