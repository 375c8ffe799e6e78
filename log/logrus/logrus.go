// Package logrus adapts a *logrus.Entry to client.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/zoobzio/derive/client"
)

// LogrusLogger logs client requests and decode failures through a logrus
// entry, so fields already set on the entry appear on every line.
type LogrusLogger struct{ E *logrus.Entry }

var _ client.Logger = LogrusLogger{}

// New wraps e. A nil e logs through the standard logrus logger.
func New(e *logrus.Entry) LogrusLogger {
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	return LogrusLogger{E: e}
}

func (l LogrusLogger) Debug(msg string, f client.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f client.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f client.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f client.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
