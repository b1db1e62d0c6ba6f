package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := NewLogger(Options{Dir: dir, Level: "debug"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Debug("test_message_from_logging_test")
	_ = log.Sync()

	raw, err := os.ReadFile(filepath.Join(dir, "sitewatch.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"test_message_from_logging_test"`) {
		t.Fatalf("debug line missing from log file: %s", raw)
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(Options{Dir: dir, Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("should_not_appear")
	log.Warn("should_appear")
	_ = log.Sync()

	raw, _ := os.ReadFile(filepath.Join(dir, "sitewatch.log"))
	if strings.Contains(string(raw), "should_not_appear") || !strings.Contains(string(raw), "should_appear") {
		t.Fatalf("level filter not applied: %s", raw)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(Options{Dir: t.TempDir(), Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
