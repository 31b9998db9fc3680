package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	logger, err := New(Config{Level: "DEBUG", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Debug("model loaded")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"model loaded"`) || !strings.Contains(line, `"level":"debug"`) {
		t.Fatalf("unexpected log line %q", line)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}
