// Package logger wraps logrus behind the small Infof/Warnf/Errorf
// capability the scheduler, send backend and API façade depend on.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the capability every other package depends on instead of
// a concrete logging library.
type Logger interface {
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a logrus-backed Logger tagged with component, formatted
// per level ("debug", "info", "warn", "error") and format ("json" or
// "text").
func New(component, level, format string) Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return &logrusLogger{entry: log.WithField("component", component)}
}

func (l *logrusLogger) Infof(format string, v ...any)  { l.entry.Infof(format, v...) }
func (l *logrusLogger) Warnf(format string, v ...any)  { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Errorf(format string, v ...any) { l.entry.Errorf(format, v...) }

// WithField returns a derived Logger carrying an additional structured
// field on every subsequent call — e.g. a task ID bound once at the
// top of a dispatch path rather than repeated in every format string.
func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}
