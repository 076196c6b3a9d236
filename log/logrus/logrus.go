// Package logrus adapts a logrus entry to offcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/offcache"
)

var _ offcache.Logger = Logger{}

// Logger forwards cache logs to E. An "err" field holding an error is
// attached with WithError.
type Logger struct{ E *logrus.Entry }

// New tags every line with component=offcache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "offcache")}
}

func (l Logger) Debug(msg string, f offcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f offcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f offcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f offcache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f offcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	var cause error
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			cause = err
			continue
		}
		lf[k] = v
	}
	e := l.E.WithFields(lf)
	if cause != nil {
		e = e.WithError(cause)
	}
	return e
}
