// Package logging provides unified leveled logging for navconsole
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name into a Level. Unknown names map to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger wraps the standard logger with file output
type Logger struct {
	*log.Logger
	file  *os.File
	level Level
	mu    sync.Mutex
}

var (
	defaultLogger = &Logger{
		Logger: log.New(os.Stderr, "", log.LstdFlags),
		level:  LevelInfo,
	}
	once sync.Once
)

func init() {
	if os.Getenv("DEBUG") == "true" {
		defaultLogger.level = LevelDebug
	}
}

// Initialize sets up the logging system with file output in logDir.
// An empty logDir keeps logging on stderr only.
func Initialize(logDir string) error {
	var initErr error
	once.Do(func() {
		if logDir == "" {
			return
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}

		logPath := filepath.Join(logDir, "navconsole.log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			initErr = fmt.Errorf("failed to open log file: %w", err)
			return
		}

		defaultLogger.mu.Lock()
		defaultLogger.file = file
		defaultLogger.SetOutput(io.MultiWriter(os.Stderr, file))
		defaultLogger.mu.Unlock()

		Debugf("Logging initialized: %s", logPath)
	})
	return initErr
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.Logger.SetOutput(w)
}

// SetLevel sets the minimum level that is written.
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = level
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return defaultLogger.level
}

// Close closes the log file
func Close() error {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if defaultLogger.file == nil {
		return nil
	}
	err := defaultLogger.file.Close()
	defaultLogger.file = nil
	defaultLogger.Logger.SetOutput(os.Stderr)
	return err
}

func logf(level Level, format string, v ...interface{}) {
	if level < GetLevel() {
		return
	}
	defaultLogger.Printf("[%s] %s", level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug message
func Debugf(format string, v ...interface{}) {
	logf(LevelDebug, format, v...)
}

// Infof logs an info message
func Infof(format string, v ...interface{}) {
	logf(LevelInfo, format, v...)
}

// Warnf logs a warning message
func Warnf(format string, v ...interface{}) {
	logf(LevelWarn, format, v...)
}

// Errorf logs an error message
func Errorf(format string, v ...interface{}) {
	logf(LevelError, format, v...)
}

// Fatalf logs an error message and exits the process
func Fatalf(format string, v ...interface{}) {
	defaultLogger.Printf("[FATAL] %s", fmt.Sprintf(format, v...))
	_ = Close()
	os.Exit(1)
}
