package debuglog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disables all logging
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel, defaulting to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	mu           sync.RWMutex
	currentLevel = LevelOff
	handlerLevel slog.LevelVar
	logger       *slog.Logger
	logFile      io.Closer
)

// Setup configures logging at level, writing to filePath.
// If filePath is empty, defaults to ~/.foro/foro.log.
func Setup(level LogLevel, filePath ...string) error {
	mu.Lock()
	defer mu.Unlock()

	_ = closeLocked()
	currentLevel = level
	if level == LevelOff {
		return nil
	}

	var logPath string
	if len(filePath) > 0 && filePath[0] != "" {
		logPath = filePath[0]
	} else {
		home, _ := os.UserHomeDir()
		logPath = filepath.Join(home, ".foro", "foro.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	logFile = f
	logger = newLogger(f, level)
	return nil
}

// SetupWriter logs to w instead of a file. Used by tests and the serve command.
func SetupWriter(level LogLevel, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	_ = closeLocked()
	currentLevel = level
	if level != LevelOff {
		logger = newLogger(w, level)
	}
}

func newLogger(w io.Writer, level LogLevel) *slog.Logger {
	handlerLevel.Set(level.slogLevel())
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &handlerLevel})
	return slog.New(h).With("app", "foro")
}

// SetLevel changes the current logging level
func SetLevel(level LogLevel) {
	mu.Lock()
	currentLevel = level
	handlerLevel.Set(level.slogLevel())
	mu.Unlock()
}

// GetLevel returns the current logging level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Close closes the log file if open
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

func closeLocked() error {
	logger = nil
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func logf(level LogLevel, attrs []any, format string, args ...any) {
	mu.RLock()
	l, cur := logger, currentLevel
	mu.RUnlock()

	if l == nil || level < cur {
		return
	}
	l.Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, args...), attrs...)
}

func Debugf(format string, args ...any) { logf(LevelDebug, nil, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, nil, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, nil, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, nil, format, args...) }

// FieldLogger attaches key/value pairs to every message.
type FieldLogger struct {
	attrs []any
}

// WithFields returns a logger with the specified fields
func WithFields(fields map[string]any) *FieldLogger {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return &FieldLogger{attrs: attrs}
}

func (fl *FieldLogger) Debugf(format string, args ...any) { logf(LevelDebug, fl.attrs, format, args...) }
func (fl *FieldLogger) Infof(format string, args ...any)  { logf(LevelInfo, fl.attrs, format, args...) }
func (fl *FieldLogger) Warnf(format string, args ...any)  { logf(LevelWarn, fl.attrs, format, args...) }
func (fl *FieldLogger) Errorf(format string, args ...any) { logf(LevelError, fl.attrs, format, args...) }
