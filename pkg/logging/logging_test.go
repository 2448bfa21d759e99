package logging

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
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := ParseLevel(tc.in); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDefaultConfig_JSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := DefaultConfig()
	if !cfg.JSON {
		t.Error("expected JSON output")
	}
	if cfg.Level != slog.LevelDebug {
		t.Errorf("level: got %v, want %v", cfg.Level, slog.LevelDebug)
	}
}

func TestWALogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: slog.LevelInfo, JSON: true, Output: &buf})

	wa := NewWALogger(logger, "whatsmeow")
	wa.Sub("Socket").Warnf("frame %d dropped", 3)
	wa.Debugf("hidden at info level")

	out := buf.String()
	if !strings.Contains(out, `"msg":"frame 3 dropped"`) {
		t.Errorf("expected formatted message, got %s", out)
	}
	if !strings.Contains(out, `"module":"whatsmeow"`) || !strings.Contains(out, `"submodule":"Socket"`) {
		t.Errorf("expected module attributes, got %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered, got %s", out)
	}
}
