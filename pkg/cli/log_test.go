package cli

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LogOptions{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("source overflow", "source", "mic", "dropped", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "source overflow" || rec["source"] != "mic" || rec["dropped"] != float64(3) {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mixrec.log")
	var console bytes.Buffer
	logger, closer, err := NewLogger(LogOptions{File: path}, &console)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("recording started", "id", "s1")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	if console.Len() != 0 {
		t.Errorf("console got %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "msg=\"recording started\" id=s1") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewLoggerInvalid(t *testing.T) {
	if _, _, err := NewLogger(LogOptions{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for format")
	}
	if _, _, err := NewLogger(LogOptions{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for level")
	}
}
