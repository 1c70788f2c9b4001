package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"TRACE", LevelTrace},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.log")

	logger, closeFn, err := New(Options{
		Level: LevelTrace,
		File:  FileOptions{Path: path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("rule added", "rule_id", 1)
	logger.Log(context.Background(), LevelTrace, "packet matched", "rule_id", 1)
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "rule added") {
		t.Error("info line missing from file sink")
	}
	if !strings.Contains(out, "packet matched") {
		t.Error("trace line missing from file sink")
	}
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("trace level not rendered by name: %q", out)
	}
}

func TestLevelFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.log")

	logger, closeFn, err := New(Options{
		Level: slog.LevelInfo,
		File:  FileOptions{Path: path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Log(context.Background(), LevelTrace, "also hidden")
	logger.Info("visible")
	closeFn()

	data, _ := os.ReadFile(path)
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("below-threshold lines leaked through")
	}
	if !strings.Contains(out, "visible") {
		t.Error("info line filtered out")
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.log")

	fw, err := newFileWriter(FileOptions{Path: path, MaxSize: 256, MaxFiles: 2})
	if err != nil {
		t.Fatalf("newFileWriter: %v", err)
	}
	line := strings.Repeat("x", 100) + "\n"
	for i := 0; i < 10; i++ {
		if _, err := fw.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	fw.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("active file missing: %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("rotated file missing: %v", err)
	}
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Error("more rotated files kept than MaxFiles")
	}
}
