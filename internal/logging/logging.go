package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents logging verbosity.
type Level int

const (
	// LevelError only logs errors
	LevelError Level = iota
	// LevelWarn logs warnings and errors
	LevelWarn
	// LevelInfo logs info, warnings, and errors (default)
	LevelInfo
	// LevelDebug logs everything
	LevelDebug
)

// Logger provides leveled logging in either text or JSON line format.
type Logger struct {
	mu     sync.Mutex
	level  Level
	format string
	output io.Writer
}

var defaultLogger = &Logger{
	level:  LevelInfo,
	format: "text",
	output: os.Stdout,
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown verbosity level: %s (valid: debug, info, warn, error)", s)
	}
}

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

func (l Level) lower() string {
	return strings.ToLower(l.String())
}

// SetLevel sets the global log level.
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = level
}

// GetLevel returns the current log level.
func GetLevel() Level {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return defaultLogger.level
}

// SetFormat selects the output format: "text" or "json".
func SetFormat(format string) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.format = format
}

// SetOutput sets the output destination. Passing nil restores stdout.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	defaultLogger.output = w
}

// Debug logs a debug message.
func Debug(format string, args ...any) {
	defaultLogger.log(LevelDebug, format, args...)
}

// Info logs an info message.
func Info(format string, args ...any) {
	defaultLogger.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...any) {
	defaultLogger.log(LevelWarn, format, args...)
}

// Error logs an error message.
func Error(format string, args ...any) {
	defaultLogger.log(LevelError, format, args...)
}

// Print always prints regardless of level (for summaries and tables).
func Print(format string, args ...any) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	fmt.Fprintf(defaultLogger.output, format, args...)
}

// Println always prints with newline regardless of level.
func Println(args ...any) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	fmt.Fprintln(defaultLogger.output, args...)
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	now := time.Now()

	if l.format == "json" {
		entry := map[string]string{
			"ts":    now.Format(time.RFC3339),
			"level": level.lower(),
			"msg":   strings.TrimSuffix(msg, "\n"),
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	if strings.HasPrefix(msg, "\n") {
		// Preserve deliberate blank lines before a message
		msg = strings.TrimPrefix(msg, "\n")
		fmt.Fprint(l.output, "\n")
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprintf(l.output, "%s [%s] %s", now.Format("2006-01-02 15:04:05"), level.String(), msg)
}

// IsDebug returns true if debug level is enabled.
func IsDebug() bool {
	return GetLevel() >= LevelDebug
}
