package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zapcore.Level
		err  bool
	}{
		{"debug", zap.DebugLevel, false},
		{"", zap.InfoLevel, false},
		{"INFO", zap.InfoLevel, false},
		{"warning", zap.WarnLevel, false},
		{"error", zap.ErrorLevel, false},
		{"verbose", zap.InfoLevel, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("%q: err=%v, want error=%v", tc.in, err, tc.err)
		}
		if got != tc.want {
			t.Fatalf("%q: want %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestNew(t *testing.T) {
	log, err := New("debug")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.Core().Enabled(zap.DebugLevel) {
		t.Fatal("debug level not enabled")
	}
	if _, err := New("loud"); err == nil {
		t.Fatal("want error for unknown level")
	}
}
