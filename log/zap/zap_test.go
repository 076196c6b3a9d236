package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/offcache"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("sync batch processed", offcache.Fields{"attempted": 3, "completed": 2})
	l.Error("persistence failed", offcache.Fields{"doc": "entries", "err": errors.New("disk full")})
	l.Info("opened", nil)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("entries=%d", len(entries))
	}
	first := entries[0]
	if first.Level != zapcore.DebugLevel || first.LoggerName != "offcache" {
		t.Fatalf("first=%+v", first)
	}
	ctx := first.ContextMap()
	if ctx["attempted"] != int64(3) || ctx["completed"] != int64(2) {
		t.Fatalf("fields=%v", ctx)
	}
	if got := entries[1].ContextMap()["error"]; got != "disk full" {
		t.Fatalf("error field=%v", got)
	}
	if len(entries[2].Context) != 0 {
		t.Fatal("nil fields should add no context")
	}
}
