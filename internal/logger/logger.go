// Package logger provides a wrapper around logrus for structured logging.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceName is stamped on every entry as the "service" field
const ServiceName = "backtest-orchestrator"

// environment is read from ENVIRONMENT, or from the config override variable
func environment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return os.Getenv("BACKTEST_ORCH_APP_ENVIRONMENT")
}

// NewLogger creates a logger writing to stdout
func NewLogger(logLevel string) *logrus.Logger {
	return NewLoggerWithOutput(logLevel, os.Stdout)
}

// NewLoggerWithOutput is NewLogger writing to out
func NewLoggerWithOutput(logLevel string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.AddHook(serviceHook{})

	if environment() == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   out == os.Stdout,
		})
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to info", logLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

type serviceHook struct{}

func (serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = ServiceName
	}
	return nil
}
