package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is used wherever a caller did not hand in its own logger.
var Logger *logrus.Logger

func init() {
	Logger = New(logrus.InfoLevel, os.Stderr)
}

// New returns a text logger with full RFC3339 timestamps.
func New(level logrus.Level, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return log
}

// NewFromString is New with a level name such as "debug" or "warn".
func NewFromString(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return New(lvl, out), nil
}

// OrDefault returns log, or the package logger if log is nil.
func OrDefault(log *logrus.Logger) *logrus.Logger {
	if log == nil {
		return Logger
	}
	return log
}
