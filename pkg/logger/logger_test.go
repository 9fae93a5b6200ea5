package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/wonny/fxcast/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		wantLevel zerolog.Level
	}{
		{
			name:      "debug level",
			cfg:       &config.Config{Env: "development", LogLevel: "debug", LogFormat: "json"},
			wantLevel: zerolog.DebugLevel,
		},
		{
			name:      "info level",
			cfg:       &config.Config{Env: "production", LogLevel: "info", LogFormat: "json"},
			wantLevel: zerolog.InfoLevel,
		},
		{
			name:      "warn level",
			cfg:       &config.Config{Env: "staging", LogLevel: "warn", LogFormat: "console"},
			wantLevel: zerolog.WarnLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.cfg)
			if logger == nil {
				t.Fatal("Expected logger to be created")
			}
			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("Expected global level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := &Logger{zlog: zerolog.New(&buf).With().Timestamp().Logger()}

	logger.WithFields(map[string]interface{}{
		"horizon": "7d",
		"model":   "tree",
		"folds":   12,
	}).Info("backtest finished")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}

	if entry["horizon"] != "7d" {
		t.Errorf("Expected horizon 7d, got %v", entry["horizon"])
	}
	if entry["folds"] != float64(12) {
		t.Errorf("Expected folds 12, got %v", entry["folds"])
	}
	if entry["message"] != "backtest finished" {
		t.Errorf("Unexpected message %v", entry["message"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{zlog: zerolog.New(&buf)}

	logger.WithError(errors.New("order search failed")).Warn("falling back")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if entry["error"] != "order search failed" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
	if entry["level"] != "warn" {
		t.Errorf("Expected warn level, got %v", entry["level"])
	}
}

func TestNewWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fxcast.log")
	cfg := &config.Config{Env: "development", LogLevel: "info", LogFormat: "json", LogFile: path}

	logger := New(cfg)
	logger.Error("fit failed")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"level":"error"`) {
		t.Errorf("Expected JSON entry in log file, got %s", data)
	}
}

func TestNewFallsBackWhenLogFileUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg := &config.Config{Env: "development", LogLevel: "info", LogFormat: "json", LogFile: filepath.Join(blocker, "fxcast.log")}

	logger := New(cfg)
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}
	if logger.file != nil {
		t.Error("Expected no log file when the path cannot be created")
	}
	logger.Info("stdout only")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded")
	if err := l.Close(); err != nil {
		t.Errorf("Close() on nop logger = %v", err)
	}
}
