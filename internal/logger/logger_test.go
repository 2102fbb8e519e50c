package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestToZapLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":      zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"bogus": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := toZapLevel(in); got != want {
			t.Fatalf("toZapLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestFromZapKeepsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With("session", "s1")
	l.Info("bound", "cx", 3, "cz", -1)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "bound" || ctx["session"] != "s1" || ctx["cx"] != int64(3) {
		t.Fatalf("unexpected entry: %q %v", entries[0].Message, ctx)
	}
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	l.Info("ignored")
	if _, ok := l.(noOpLogger); !ok {
		t.Fatalf("expected no-op logger, got %T", l)
	}
}
