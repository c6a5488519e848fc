package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestEnsureFallsBackToNop(t *testing.T) {
	if _, ok := Ensure(nil).(NopLogger); !ok {
		t.Fatal("Ensure(nil) should return NopLogger")
	}
	zl := NewZapLogger(nil)
	if Ensure(zl) != Logger(zl) {
		t.Fatal("Ensure should keep a non-nil logger")
	}
}

func TestZapLoggerWritesObjectUnderKey(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))

	l.WarnObj("source failed", "source_error", map[string]string{"source_id": "nyaa"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Message != "source failed" || e.Level != zapcore.WarnLevel {
		t.Fatalf("unexpected entry %+v", e.Entry)
	}
	if _, ok := e.ContextMap()["source_error"]; !ok {
		t.Fatalf("object not logged under key: %v", e.ContextMap())
	}
}
