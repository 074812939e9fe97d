package utils

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger provides different logging levels
type Logger struct {
	debug   bool
	verbose bool

	mu     sync.Mutex
	writer io.Writer // Where to write logs
	closer io.Closer
}

// NewLoggerWithWriter creates a logger writing to w. A nil writer discards output.
func NewLoggerWithWriter(debug, verbose bool, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{
		debug:   debug,
		verbose: verbose,
		writer:  w,
	}
}

// NewLoggerWithFile creates a logger that writes to console and a file
func NewLoggerWithFile(debug, verbose bool, console io.Writer, logFilePath string) (*Logger, error) {
	if err := EnsureDirForFile(logFilePath); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", logFilePath, err)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	if console == nil {
		console = os.Stdout
	}

	return &Logger{
		debug:   debug,
		verbose: verbose,
		writer:  io.MultiWriter(console, logFile),
		closer:  logFile,
	}, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// DebugEnabled reports whether debug output is on
func (l *Logger) DebugEnabled() bool {
	return l != nil && l.debug
}

func (l *Logger) write(level, format string, args ...interface{}) {
	if l == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)

	// concurrent downloads share one logger
	l.mu.Lock()
	fmt.Fprintf(l.writer, "[%s] %s: %s\n", timestamp, level, msg)
	l.mu.Unlock()
}

// Info logs informational messages (always shown)
func (l *Logger) Info(format string, args ...interface{}) {
	l.write("INFO", format, args...)
}

// Warn logs recoverable problems (always shown)
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write("WARN", format, args...)
}

// Debug logs debug messages (only if debug enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l != nil && l.debug {
		l.write("DEBUG", format, args...)
	}
}

// Verbose logs verbose messages (only if verbose enabled)
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l != nil && l.verbose {
		l.write("VERBOSE", format, args...)
	}
}

// Error logs error messages (always shown)
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERROR", format, args...)
}
