package logging

import (
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewAppendsToProjectLog(t *testing.T) {
	projectDir := t.TempDir()
	logger, err := New(projectDir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("role finished", zap.String("role", "qa-engineer"))
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(Path(projectDir))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"role":"qa-engineer"`) {
		t.Fatalf("expected structured field in log, got %s", text)
	}
	if strings.Contains(text, "hidden at info level") {
		t.Fatalf("debug entry should be filtered")
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	projectDir := t.TempDir()
	logger, err := New(projectDir, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("scan step")
	_ = logger.Sync()
	data, err := os.ReadFile(Path(projectDir))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "scan step") {
		t.Fatalf("expected debug entry in verbose mode")
	}
}
