// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Options selects level and output format
type Options struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	Caller bool   `yaml:"caller"`
}

// Init configures the standard logger. Output goes to stderr so stdout
// stays free for command results.
func Init(opts Options) error {
	return Configure(logrus.StandardLogger(), opts, os.Stderr)
}

// Configure applies opts to logger
func Configure(logger *logrus.Logger, opts Options, out io.Writer) error {
	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	switch opts.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
			CallerPrettyfier: func(frame *runtime.Frame) (function string, file string) {
				return frame.Function, ""
			},
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return fmt.Errorf("invalid log format %q", opts.Format)
	}

	logger.SetLevel(level)
	logger.SetReportCaller(opts.Caller)
	logger.SetOutput(out)
	return nil
}
