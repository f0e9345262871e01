package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "json format",
			config: &Config{
				Level:  LevelInfo,
				Format: "json",
				Output: &bytes.Buffer{},
			},
		},
		{
			name: "text format",
			config: &Config{
				Level:  LevelDebug,
				Format: "text",
				Output: &bytes.Buffer{},
			},
		},
		{
			name:   "nil output",
			config: &Config{Level: LevelWarn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func textLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:   level,
		Format:  "text",
		Output:  buf,
		NoColor: true,
	})
}

func TestLoggerWithDevice(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf, LevelDebug)

	deviceLogger := logger.WithDevice("/dev/sdb")
	deviceLogger.Info("writing superblock", "offset", 4096)

	output := buf.String()
	if !strings.Contains(output, "device=/dev/sdb") {
		t.Errorf("Expected device=/dev/sdb in output, got: %s", output)
	}
	if !strings.Contains(output, "offset=4096") {
		t.Errorf("Expected offset=4096 in output, got: %s", output)
	}
	if deviceLogger.Device() != "/dev/sdb" {
		t.Errorf("Device() = %q, want /dev/sdb", deviceLogger.Device())
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf, LevelDebug)

	errorLogger := logger.WithDevice("/dev/sdc").WithError(errors.New("discard not supported"))
	errorLogger.Warn("discard failed")

	output := buf.String()
	if !strings.Contains(output, "discard not supported") {
		t.Errorf("Expected error text in output, got: %s", output)
	}
	if errorLogger.Device() != "/dev/sdc" {
		t.Errorf("WithError dropped device context")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf, LevelWarn)

	logger.Info("hidden")
	logger.Debugf("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Expected no output below warn level, got: %s", buf.String())
	}

	logger.Warnf("Waiting for %s", "release")
	if !strings.Contains(buf.String(), "Waiting for release") {
		t.Errorf("Expected warn output, got: %s", buf.String())
	}
}

func TestOddArgsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf, LevelInfo)

	logger.Info("message", "dangling")
	logger.Info("message", 42, "value")
	if strings.Count(buf.String(), "message") != 2 {
		t.Errorf("Expected two messages, got: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	Nop().Error("nothing")
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(textLogger(&buf, LevelDebug))
	defer SetDefault(prev)

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("Expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("Expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("Expected error message, got: %s", buf.String())
	}
}
