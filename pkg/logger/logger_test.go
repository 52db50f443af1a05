package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentTag(t *testing.T) {
	var buf bytes.Buffer
	prev := Default
	SetLogger(NewLogger(&buf))
	defer SetLogger(prev)

	LogInfo(ComponentStorage, "mounted", "blocks", 512)

	out := buf.String()
	if !strings.Contains(out, "component=storage") {
		t.Errorf("Expected component tag, got %q", out)
	}
	if !strings.Contains(out, "blocks=512") {
		t.Errorf("Expected attribute, got %q", out)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	prev, prevLevel := Default, Level()
	SetLogger(NewLogger(&buf))
	SetLevel(slog.LevelWarn)
	defer func() {
		SetLogger(prev)
		SetLevel(prevLevel)
	}()

	LogDebug(ComponentKeyboard, "hidden")
	LogInfo(ComponentKeyboard, "hidden")
	LogWarn(ComponentKeyboard, "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Expected debug and info to be filtered, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected warning in output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tt.in, tt.expected, got)
		}
	}
}
