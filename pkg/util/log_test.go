package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.log")
	logger, err := NewLoggerWithFile(path, "warn")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	sugar := logger.Sugar()
	sugar.Infow("dropped_below_level")
	sugar.Warnw("custody_shortfall", "asset", "USDC", "missing", 5)
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1: %q", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry["msg"] != "custody_shortfall" || entry["level"] != "WARN" || entry["asset"] != "USDC" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Errorf("entry has no ts: %v", entry)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Error("unknown level accepted")
	}
	if _, err := NewLogger(""); err != nil {
		t.Errorf("empty level: %v", err)
	}
}

func TestManualClock(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	c := NewManualClock(start)
	c.Advance(1500 * time.Millisecond)
	if got := c.Now().UnixMilli(); got != 1_700_000_001_500 {
		t.Errorf("now = %d", got)
	}
}
