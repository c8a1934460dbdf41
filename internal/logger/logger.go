package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Logger is the process-wide structured logger, configured from LOG_LEVEL
// and LOG_FORMAT at startup.
var Logger = newFromEnv()

func newFromEnv() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	l.SetFormatter(newFormatter(os.Getenv("LOG_FORMAT")))
	return l
}

// parseLevel accepts the full logrus range (trace through panic).
// Unknown or empty values mean info.
func parseLevel(raw string) logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// newFormatter picks the output encoding: JSON by default, "text" for
// local development.
func newFormatter(raw string) logrus.Formatter {
	if strings.EqualFold(strings.TrimSpace(raw), "text") {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		}
	}
	return &logrus.JSONFormatter{TimestampFormat: timestampFormat}
}

// WithFields creates an entry carrying the given fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithField creates an entry carrying a single field.
func WithField(key string, value any) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithError creates an entry carrying an error field.
func WithError(err error) *logrus.Entry {
	return Logger.WithError(err)
}

// Debug logs at debug level.
func Debug(msg string) { Logger.Debug(msg) }

// Info logs at info level.
func Info(msg string) { Logger.Info(msg) }

// Warn logs at warning level.
func Warn(msg string) { Logger.Warn(msg) }

// Error logs at error level.
func Error(msg string) { Logger.Error(msg) }
