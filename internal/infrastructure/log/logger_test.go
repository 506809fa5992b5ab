package log

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo}, // 默认值
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	// 保存原始环境变量
	oldLogLevel := os.Getenv("LOG_LEVEL")
	oldLogFormat := os.Getenv("LOG_FORMAT")
	oldEnv := os.Getenv("ENV")

	defer func() {
		restoreEnv("LOG_LEVEL", oldLogLevel)
		restoreEnv("LOG_FORMAT", oldLogFormat)
		restoreEnv("ENV", oldEnv)
	}()

	t.Run("default config", func(t *testing.T) {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("LOG_FORMAT")
		os.Unsetenv("ENV")

		cfg := NewConfigFromEnv()

		if cfg.Level != "info" {
			t.Errorf("expected default level info, got %s", cfg.Level)
		}
		if cfg.Format != "json" {
			t.Errorf("expected default format json, got %s", cfg.Format)
		}
	})

	t.Run("custom config", func(t *testing.T) {
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("LOG_FORMAT", "console")

		cfg := NewConfigFromEnv()

		if cfg.Level != "debug" {
			t.Errorf("expected level debug, got %s", cfg.Level)
		}
		if cfg.Format != "console" {
			t.Errorf("expected format console, got %s", cfg.Format)
		}
	})

	t.Run("development mode", func(t *testing.T) {
		os.Setenv("ENV", "development")
		os.Setenv("LOG_LEVEL", "error") // 应该被覆盖

		cfg := NewConfigFromEnv()

		if cfg.Level != "debug" {
			t.Errorf("expected debug in development, got %s", cfg.Level)
		}
		if cfg.Format != "console" {
			t.Errorf("expected console in development, got %s", cfg.Format)
		}
		if !cfg.AddSource {
			t.Error("expected AddSource true in development")
		}
	})
}

func restoreEnv(key, value string) {
	if value != "" {
		os.Setenv(key, value)
	} else {
		os.Unsetenv(key)
	}
}

func TestInit(t *testing.T) {
	oldLevel := os.Getenv("LOG_LEVEL")
	oldEnv := os.Getenv("ENV")
	defer func() {
		restoreEnv("LOG_LEVEL", oldLevel)
		restoreEnv("ENV", oldEnv)
	}()
	os.Unsetenv("ENV")

	t.Run("init with defaults", func(t *testing.T) {
		os.Unsetenv("LOG_LEVEL")
		Init(nil)

		if GetLogger() == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("init with custom config", func(t *testing.T) {
		os.Setenv("LOG_LEVEL", "debug")
		cfg := NewConfigFromEnv()

		Init(cfg)

		if !IsDebugMode() {
			t.Error("expected debug mode")
		}
	})
}

func TestNewModuleLogger(t *testing.T) {
	Init(nil)

	logger := NewModuleLogger("ingest", "chunker")
	if logger == nil {
		t.Error("expected non-nil logger")
	}

	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	testLogger := slog.New(handler).With("module", "ingest", "component", "chunker")

	testLogger.Info("chunk batch stored")

	if !strings.Contains(buf.String(), "chunk batch stored") {
		t.Error("expected log message in output")
	}
}
