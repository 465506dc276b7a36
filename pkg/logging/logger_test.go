package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Level: LevelInfo, Output: &buf})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info().Str("component", "test").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"test"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestSetupMirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")

	var buf bytes.Buffer
	logger, err := Setup(Config{Level: LevelInfo, Output: &buf, File: path})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info().Msg("mirrored")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "mirrored") {
		t.Errorf("log file missing entry, got %q", string(data))
	}
	if !strings.Contains(buf.String(), "mirrored") {
		t.Errorf("primary output missing entry, got %q", buf.String())
	}
}

func TestNewLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Setup(Config{Level: LevelDebug, Output: &buf}); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger := NewLogger("paginator")
	logger.Debug().Msg("scoped")

	if !strings.Contains(buf.String(), `"component":"paginator"`) {
		t.Errorf("expected component field, got %q", buf.String())
	}
}
