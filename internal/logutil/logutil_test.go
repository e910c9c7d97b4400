package logutil

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scottscharl/scottystack/pkg/models"
)

// Helper function to create a logger that writes to a buffer for testing
func createTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestNewTimingLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	start := time.Now()
	time.Sleep(10 * time.Millisecond)

	timingLogger := NewTimingLogger(logger, start, "backend request", "path", "/api/health")
	timingLogger()

	output := buf.String()
	if !strings.Contains(output, "backend request") {
		t.Errorf("Expected log to contain 'backend request', got: %s", output)
	}
	if !strings.Contains(output, "duration") {
		t.Errorf("Expected log to contain 'duration', got: %s", output)
	}
	if !strings.Contains(output, "path=/api/health") {
		t.Errorf("Expected log to contain 'path=/api/health', got: %s", output)
	}
	if !strings.Contains(output, "level=DEBUG") {
		t.Errorf("Expected log to be DEBUG level, got: %s", output)
	}
}

func TestLogAndWrapErr_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	originalErr := errors.New("disk full")
	wrappedErr := LogAndWrapErr(logger, "failed to save session", originalErr, "driver", "file")

	if wrappedErr == nil {
		t.Fatal("Expected wrapped error, got nil")
	}
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected wrapped error to be identifiable with errors.Is")
	}
	if !strings.Contains(wrappedErr.Error(), "failed to save session") {
		t.Errorf("Expected wrapped error to contain message, got: %s", wrappedErr.Error())
	}

	output := buf.String()
	if !strings.Contains(output, "driver=file") {
		t.Errorf("Expected log to contain 'driver=file', got: %s", output)
	}
	if !strings.Contains(output, "err=\"disk full\"") {
		t.Errorf("Expected log to contain error, got: %s", output)
	}
	if !strings.Contains(output, "level=ERROR") {
		t.Errorf("Expected log to be ERROR level, got: %s", output)
	}
}

func TestLogAndWrapErr_WithNilError(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	if result := LogAndWrapErr(logger, "failed to save session", nil); result != nil {
		t.Errorf("Expected nil result for nil error, got: %v", result)
	}
	if output := buf.String(); output != "" {
		t.Errorf("Expected no log output for nil error, got: %s", output)
	}
}

func TestDebugAndWrapErr_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	originalErr := errors.New("token rejected")
	wrappedErr := DebugAndWrapErr(logger, "refresh failed", originalErr, "request_id", "xyz-123")

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected wrapped error to be identifiable with errors.Is")
	}

	output := buf.String()
	if !strings.Contains(output, "level=DEBUG") {
		t.Errorf("Expected log to be DEBUG level, got: %s", output)
	}
	if !strings.Contains(output, "msg=\"refresh failed\"") {
		t.Errorf("Expected log to contain 'refresh failed', got: %s", output)
	}
	if !strings.Contains(output, "request_id=xyz-123") {
		t.Errorf("Expected log to contain 'request_id=xyz-123', got: %s", output)
	}
}

func TestDebugAndWrapErr_WithNilError(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	if result := DebugAndWrapErr(logger, "this should not be logged", nil); result != nil {
		t.Errorf("Expected nil result for nil error, got: %v", result)
	}
	if output := buf.String(); output != "" {
		t.Errorf("Expected no log output for nil error, got: %s", output)
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	WithFields(logger, "component", "scheduler").Info("armed")

	output := buf.String()
	if !strings.Contains(output, "component=scheduler") {
		t.Errorf("Expected log to contain 'component=scheduler', got: %s", output)
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "abc", want: "***"},
		{in: "eyJhbGciOiJIUzI1NiJ9.payload.signature", want: "***nature"},
	}
	for _, tt := range tests {
		if got := RedactToken(tt.in); got != tt.want {
			t.Errorf("RedactToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := createTestLogger(&buf)

	s := models.Session{
		Token:     "header.payload.secretsignature",
		Identity:  &models.Identity{ID: "rec1", Email: "a@b.com"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	logger.Info("session changed", SessionAttrs(s))
	logger.Info("session changed", SessionAttrs(models.EmptySession()))

	output := buf.String()
	if strings.Contains(output, "secretsignature") {
		t.Errorf("token leaked into log output: %s", output)
	}
	if !strings.Contains(output, "session.email=a@b.com") {
		t.Errorf("Expected log to contain the session email, got: %s", output)
	}
	if !strings.Contains(output, "session.empty=true") {
		t.Errorf("Expected empty session marker, got: %s", output)
	}
}

func TestNewLogger(t *testing.T) {
	if got := ParseLevel("DEBUG"); got != slog.LevelDebug {
		t.Errorf("ParseLevel(DEBUG) = %v", got)
	}
	if got := ParseLevel("nonsense"); got != slog.LevelInfo {
		t.Errorf("ParseLevel(nonsense) = %v, want info", got)
	}

	logger := NewLogger(Options{Level: "error", Format: "json", File: filepath.Join(t.TempDir(), "scottystack.log")})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at error level")
	}
}
