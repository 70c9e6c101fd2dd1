package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionFileSuffix marks session logs inside a directory.
const SessionFileSuffix = "-session.jsonl"

// ErrClosed is returned when logging to a closed JSONLogger.
var ErrClosed = errors.New("session log closed")

// Logger receives episode events.
type Logger interface {
	Log(event Event) error
	Close() error
}

// Open returns a JSONLogger appending to path, or a NopLogger when path is
// empty. An existing directory gets a new timestamped log inside it.
func Open(path string) (Logger, error) {
	if path == "" {
		return NopLogger{}, nil
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = DefaultLogPath(path)
	}
	return NewJSONLogger(path)
}

// JSONLogger appends one JSON object per line to a file. Episodes of a batch
// share a single logger.
type JSONLogger struct {
	path string

	mu      sync.Mutex
	f       *os.File
	enc     *json.Encoder
	written int
}

// NewJSONLogger opens path for appending, creating missing directories.
func NewJSONLogger(path string) (*JSONLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating session log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	return &JSONLogger{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

func (l *JSONLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	if err := l.enc.Encode(event); err != nil {
		return fmt.Errorf("writing %s event: %w", event.Type, err)
	}
	l.written++
	return nil
}

// Close is idempotent.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f, l.enc = nil, nil
	return err
}

func (l *JSONLogger) Path() string { return l.path }

// Written reports how many events were logged.
func (l *JSONLogger) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// NopLogger discards events.
type NopLogger struct{}

func (NopLogger) Log(Event) error { return nil }
func (NopLogger) Close() error    { return nil }

// LogBestEffort writes event and reports a failure through slog instead of
// returning it.
func LogBestEffort(l Logger, event Event) {
	if l == nil {
		return
	}
	if err := l.Log(event); err != nil {
		slog.Warn("failed to write session event", "type", event.Type, "error", err)
	}
}

// DefaultLogPath returns a timestamped session log path inside dir.
func DefaultLogPath(dir string) string {
	return filepath.Join(dir, time.Now().UTC().Format("20060102T150405Z")+SessionFileSuffix)
}
