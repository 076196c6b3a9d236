// Package zap adapts a *zap.Logger to offcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/offcache"
)

var _ offcache.Logger = Logger{}

// Logger forwards cache logs to L. An "err" field holding an error is
// emitted with zap.Error so it lands under the standard "error" key.
type Logger struct{ L *zap.Logger }

// New names the logger "offcache" so cache lines are easy to filter.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("offcache")} }

func (z Logger) Debug(msg string, f offcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f offcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f offcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f offcache.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f offcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
