package logx

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// setupTestLogger sets up a logger with a bytes.Buffer for testing.
func setupTestLogger() *bytes.Buffer {
	var buf bytes.Buffer
	logWriterLock.Lock()
	logWriter = &buf
	logWriterLock.Unlock()
	return &buf
}

// resetTestLogger resets the logger to default stderr.
func resetTestLogger() {
	logWriterLock.Lock()
	logWriter = nil
	logWriterLock.Unlock()
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("router")

	if logger.GetComponent() != "router" {
		t.Errorf("Expected component 'router', got '%s'", logger.GetComponent())
	}
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("codemode")
	logger.Info("Test message with %s", "formatting")

	output := buf.String()

	if !strings.Contains(output, "[codemode]") {
		t.Errorf("Expected component in output, got: %s", output)
	}

	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}

	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}

	// Check timestamp format (basic check)
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	logger := NewLogger("gateway")

	tests := []struct {
		level    Level
		logFunc  func(string, ...any)
		expected string
	}{
		{LevelDebug, logger.Debug, "DEBUG"},
		{LevelInfo, logger.Info, "INFO"},
		{LevelWarn, logger.Warn, "WARN"},
		{LevelError, logger.Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := setupTestLogger()
			defer resetTestLogger()

			if tt.level == LevelDebug {
				SetDebug(true)
				defer SetDebug(false)
			}

			tt.logFunc("test message")

			output := buf.String()
			if !strings.Contains(output, tt.expected) {
				t.Errorf("Expected level '%s' in output, got: %s", tt.expected, output)
			}
		})
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	SetDebug(false)
	logger := NewLogger("sandbox")
	logger.Debug("invisible")

	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	originalLogger := NewLogger("router")
	newLogger := originalLogger.WithComponent("sched")

	if newLogger.GetComponent() != "sched" {
		t.Errorf("Expected new component 'sched', got '%s'", newLogger.GetComponent())
	}

	if originalLogger.GetComponent() != "router" {
		t.Errorf("Expected original component unchanged, got '%s'", originalLogger.GetComponent())
	}

	buf := setupTestLogger()
	defer resetTestLogger()

	originalLogger.Info("test1")
	newLogger.Info("test2")

	output := buf.String()
	if !strings.Contains(output, "router") {
		t.Error("Expected original logger to work")
	}
	if !strings.Contains(output, "sched") {
		t.Error("Expected new logger to work")
	}
}

func TestMultipleComponents(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	router := NewLogger("router")
	codemode := NewLogger("codemode")

	router.Info("Routing mention")
	codemode.Info("Generating snippet")

	output := buf.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")

	if len(lines) != 2 {
		t.Errorf("Expected 2 log lines, got %d", len(lines))
	}

	if len(lines) > 0 && !strings.Contains(lines[0], "[router]") {
		t.Errorf("Expected first line to contain [router], got: %s", lines[0])
	}

	if len(lines) > 1 && !strings.Contains(lines[1], "[codemode]") {
		t.Errorf("Expected second line to contain [codemode], got: %s", lines[1])
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	logger := NewLogger("test")
	logger.Info("timestamp test")

	output := buf.String()

	start := strings.Index(output, "[")
	end := strings.Index(output, "]")

	if start == -1 || end == -1 || end <= start {
		t.Fatalf("Could not find timestamp in output: %s", output)
	}

	timestamp := output[start+1 : end]

	_, err := time.Parse("2006-01-02T15:04:05.000Z", timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format '%s': %v", timestamp, err)
	}
}

func TestErrorfReturnsError(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	err := Errorf("connect failed: %s", "refused")
	if err == nil {
		t.Fatal("Expected error from Errorf")
	}
	if err.Error() != "connect failed: refused" {
		t.Errorf("Unexpected error text: %s", err.Error())
	}
	if !strings.Contains(buf.String(), "connect failed: refused") {
		t.Errorf("Expected logged error, got: %s", buf.String())
	}
}

func TestWrap(t *testing.T) {
	buf := setupTestLogger()
	defer resetTestLogger()

	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if buf.Len() != 0 {
		t.Error("Wrap(nil) should not log")
	}

	base := Errorf("boom")
	buf.Reset()
	wrapped := Wrap(base, "stage failed")
	if wrapped == nil || wrapped.Error() != "stage failed: boom" {
		t.Errorf("Unexpected wrapped error: %v", wrapped)
	}
	if !strings.Contains(buf.String(), "stage failed: boom") {
		t.Errorf("Expected logged wrap, got: %s", buf.String())
	}
}
