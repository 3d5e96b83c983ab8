package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	rlog "github.com/unkn0wn-root/regioncache/log"
)

func TestLoggerWritesSortedFields(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug}))}

	l.Warn("soft lock released twice", rlog.Fields{"region": "item", "key": "k1"})

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("missing level in %q", out)
	}
	ki := strings.Index(out, "key=k1")
	ri := strings.Index(out, "region=item")
	if ki < 0 || ri < 0 || ki > ri {
		t.Fatalf("fields missing or unsorted in %q", out)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug record should be filtered, got %q", buf.String())
	}
}
