package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/scottscharl/scottystack/pkg/models"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how NewLogger builds its handler.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // optional path, rotated with lumberjack
}

// NewLogger builds a slog.Logger writing to stderr and, when File is set,
// to a rotated log file as well.
func NewLogger(opts Options) *slog.Logger {
	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTimingLogger returns a closure that logs a debug message with duration when called.
// Pass in the logger, a start time, a message, and any initial fields.
func NewTimingLogger(logger *slog.Logger, start time.Time, msg string, initialFields ...any) func() {
	return func() {
		elapsed := time.Since(start)
		finalFields := append(initialFields, "duration", elapsed.String())
		logger.Debug(msg, finalFields...)
	}
}

// LogAndWrapErr logs an error with context fields and wraps it with a message.
// It returns a wrapped error (with %w) so errors.Is / errors.As still work.
func LogAndWrapErr(logger *slog.Logger, msg string, err error, fields ...any) error {
	if err == nil {
		return nil
	}
	allFields := append(fields, "err", err)
	logger.Error(msg, allFields...)
	return fmt.Errorf("%s: %w", msg, err)
}

// DebugAndWrapErr is LogAndWrapErr at debug level, for failures the caller
// is expected to handle (bad credentials, expired tokens).
func DebugAndWrapErr(logger *slog.Logger, msg string, err error, fields ...any) error {
	if err == nil {
		return nil
	}
	allFields := append(fields, "err", err)
	logger.Debug(msg, allFields...)
	return fmt.Errorf("%s: %w", msg, err)
}

// WithFields returns a new logger with the given fields pre-populated
func WithFields(logger *slog.Logger, fields ...any) *slog.Logger {
	return logger.With(fields...)
}

// RedactToken keeps only the last few characters of a credential.
func RedactToken(token string) string {
	const keep = 6
	if token == "" {
		return ""
	}
	if len(token) <= keep {
		return "***"
	}
	return "***" + token[len(token)-keep:]
}

// SessionAttrs groups the loggable parts of a session. The token is redacted.
func SessionAttrs(s models.Session) slog.Attr {
	if s.IsEmpty() {
		return slog.Group("session", slog.Bool("empty", true))
	}
	return slog.Group("session",
		slog.String("user_id", s.Identity.ID),
		slog.String("email", s.Identity.Email),
		slog.String("token", RedactToken(s.Token)),
		slog.Time("expires_at", s.ExpiresAt),
	)
}
