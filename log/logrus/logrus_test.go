package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/offcache"
)

func TestLoggerForwardsFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	l.Warn("sync operation failed permanently", offcache.Fields{
		"id":  "op-1",
		"err": errors.New("upstream 503"),
	})

	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel || e.Message != "sync operation failed permanently" {
		t.Fatalf("entry=%+v", e)
	}
	if e.Data["component"] != "offcache" || e.Data["id"] != "op-1" {
		t.Fatalf("data=%v", e.Data)
	}
	if err, ok := e.Data[logrus.ErrorKey].(error); !ok || err.Error() != "upstream 503" {
		t.Fatalf("error=%v", e.Data[logrus.ErrorKey])
	}
	if _, ok := e.Data["err"]; ok {
		t.Fatal("err should be moved to the error key")
	}

	l.Debug("tick", nil)
	if hook.LastEntry().Level != logrus.DebugLevel || len(hook.AllEntries()) != 2 {
		t.Fatal("debug line missing")
	}
}
