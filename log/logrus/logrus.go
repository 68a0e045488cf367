// Package logrus adapts a *logrus.Entry to slcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/slcache"
)

var _ slcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every entry with component=slcache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "slcache")}
}

func (l LogrusLogger) Debug(msg string, f slcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f slcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f slcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f slcache.Fields) { l.with(f).Error(msg) }

func (l LogrusLogger) with(f slcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	// the "err" field goes through WithError so formatters render it as one
	if err, ok := f["err"].(error); ok {
		rest := make(logrus.Fields, len(f)-1)
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return l.E.WithError(err).WithFields(rest)
	}
	return l.E.WithFields(logrus.Fields(f))
}
