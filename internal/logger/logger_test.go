package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, dev := range []bool{false, true} {
		log, err := New(Config{Level: "warn", Dev: dev})
		if err != nil {
			t.Fatalf("New(dev=%v): %v", dev, err)
		}
		if log.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("dev=%v: info should be disabled at warn level", dev)
		}
		if !log.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("dev=%v: error should be enabled at warn level", dev)
		}
	}
}
