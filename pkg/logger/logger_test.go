package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInit_SetsLoggerForEveryLevel(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "unknown"}
	for _, level := range levels {
		Init(Config{Level: level, Format: "json", Output: "stdout"})
		if Log == nil {
			t.Errorf("Init with level %q should set Log", level)
		}
	}
}

func TestInit_Formats(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "json format stdout",
			config: Config{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name:   "text format stderr",
			config: Config{Level: "debug", Format: "text", Output: "stderr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(tt.config)
			if Log == nil {
				t.Error("Log should not be nil")
			}
		})
	}
}

func TestInit_FileOutput(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	Init(Config{Level: "info", Format: "json", Output: "file", FilePath: logPath})
	if Log == nil {
		t.Fatal("Log should not be nil")
	}

	Log.Info("test message")
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("log file should exist after writing: %v", err)
	}
}

func TestInit_FileOutputInvalidDirFallsBackToStdout(t *testing.T) {
	Init(Config{Level: "info", Format: "json", Output: "file", FilePath: "/proc/nonexistent/deeply/nested/test.log"})
	if Log == nil {
		t.Error("Log should not be nil even with an unwritable path")
	}
}

func TestWithRequestID(t *testing.T) {
	Init(Config{Level: "info", Format: "json", Output: "stdout"})

	logger := WithRequestID("req-123")
	if logger == nil {
		t.Error("WithRequestID should return a logger")
	}
}
