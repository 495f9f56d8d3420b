package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetOutput_TextHandler(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info", false)

	Info("monitor fired", "output", "success")
	Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "monitor fired") {
		t.Errorf("expected info line, got %q", out)
	}
	if !strings.Contains(out, "output=success") {
		t.Errorf("expected attribute in text form, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level, got %q", out)
	}
}

func TestComponent_JSONHandler(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug", true)

	Component("engine").Debug("tick")

	out := buf.String()
	if !strings.Contains(out, `"component":"engine"`) {
		t.Errorf("expected component attribute, got %q", out)
	}
}
