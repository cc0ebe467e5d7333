package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInitLogger_ValidLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"大文字", "DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := InitLogger(tt.level); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if GetLogger() == nil {
				t.Fatal("GetLogger() returned nil")
			}
			got, err := ParseLevel(tt.level)
			if err != nil {
				t.Fatalf("ParseLevel: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	if err := InitLogger("invalid"); err == nil {
		t.Error("expected error for invalid log level, got nil")
	}
}

func TestInitLoggerWithWriter_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitLoggerWithWriter("warn", &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log := GetLogger()
	log.Info("hidden message")
	log.Warn("visible message", "key", 60)

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "key=60") {
		t.Errorf("warn message missing from output: %q", out)
	}
}

func TestGetLogger_BeforeInit(t *testing.T) {
	// globalLoggerをリセット
	globalLogger = nil

	logger := GetLogger()
	if logger == nil {
		t.Error("GetLogger() should return default logger when not initialized")
	}

	// デフォルトロガーが返されることを確認
	if logger != slog.Default() {
		t.Error("GetLogger() should return slog.Default() when not initialized")
	}
}

func TestDiscard(t *testing.T) {
	if Discard() == nil {
		t.Fatal("Discard() returned nil")
	}
}
