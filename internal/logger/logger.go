package logger

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger wraps charm/log for structured logging
type Logger struct {
	*log.Logger
}

// New creates a new logger with the given output
func New(w io.Writer) *Logger {
	return NewWithLevel(w, log.InfoLevel)
}

// NewWithLevel creates a logger with a specific level
func NewWithLevel(w io.Writer, level log.Level) *Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           level,
	})
	return &Logger{Logger: l}
}

// FromEnv builds a stderr logger from a level name and format ("text" or
// "json"). Unknown levels fall back to info.
func FromEnv(levelName, format string) *Logger {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		level = log.InfoLevel
	}
	l := NewWithLevel(os.Stderr, level)
	if format == "json" {
		l.SetFormatter(log.JSONFormatter)
	}
	return l
}

// Discard returns a logger that discards all output
func Discard() *Logger {
	return New(io.Discard)
}

// ParseWarnings logs recoverable parser anomalies for one document.
func (l *Logger) ParseWarnings(docID string, warnings []string) {
	for _, w := range warnings {
		l.Warn("parse warning",
			"document", docID,
			"warning", w)
	}
}

// ParseCompleted logs a finished index run
func (l *Logger) ParseCompleted(docID string, nodes int, duration time.Duration) {
	l.Info("document indexed",
		"document", docID,
		"nodes", nodes,
		"duration", duration.Round(time.Millisecond))
}

// ParseFailed logs a failed index run
func (l *Logger) ParseFailed(docID string, err error) {
	l.Error("document index failed",
		"document", docID,
		"error", err)
}

// SettingDecodeFailed logs a stored setting that could not be decoded.
func (l *Logger) SettingDecodeFailed(scope, key string, err error) {
	l.Error("markmap options decode failed",
		"scope", scope,
		"key", key,
		"error", err)
}

// BackendUnavailable logs an optional backend that is not reachable.
func (l *Logger) BackendUnavailable(name string, err error) {
	l.Warn("backend unavailable",
		"backend", name,
		"error", err)
}

// Request logs one served HTTP request
func (l *Logger) Request(requestID, method, path string, status int, duration time.Duration) {
	l.Info("request",
		"request_id", requestID,
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds())
}
