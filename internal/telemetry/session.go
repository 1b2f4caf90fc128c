// Package telemetry provides session-scoped logging for the bridge's
// dispatcher and transport adapters: full detail goes to a session log
// file, while only operator-relevant lines (bootstrap failures, explicit
// user-facing notices) also reach the console.
package telemetry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes detailed bridge activity to a session file. Error calls
// also go to stderr, and Info calls go to stdout unless quiet mode is on.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	quietMode bool
}

// New creates a session logger writing into logDir. quietMode suppresses
// Info output on the console (Debug output never reaches it); both always
// go to the file.
func New(logDir string, quietMode bool) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("telemetry: create log dir: %w", err)
	}

	sessionID := time.Now().Format("20060102-150405")
	path := filepath.Join(logDir, fmt.Sprintf("bridge-%s.log", sessionID))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open log file: %w", err)
	}

	l := &Logger{file: f, path: path, quietMode: quietMode}
	l.writeToFile("=== bridge session started ===")
	return l, nil
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.writeToFile("=== bridge session ended ===")
	return l.file.Close()
}

// Path returns the log file's path.
func (l *Logger) Path() string {
	return l.path
}

// Debug logs a file-only diagnostic: sub-channel allocation, key-chain
// walks, response correlation. Never reaches the console.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logLine("DEBUG", false, format, args...)
}

// Info logs a file-only event unless quiet mode is off, in which case it
// also prints to stdout.
func (l *Logger) Info(format string, args ...interface{}) {
	l.logLine("INFO", !l.quietMode, format, args...)
}

// Error logs a dispatcher/transport error reply to both file and stderr.
func (l *Logger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	l.writeToFile("ERROR: %s", msg)
	fmt.Fprintf(os.Stderr, "bridge: %s\n", msg)
}

func (l *Logger) logLine(level string, alsoConsole bool, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	l.writeToFile("%s: %s", level, msg)
	if alsoConsole {
		fmt.Println(msg)
	}
}

func (l *Logger) writeToFile(format string, args ...interface{}) {
	if l.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
}

// global is the process-wide fallback used by code that has no Logger of
// its own (e.g. package-level helpers called before a bridge is
// constructed). Bridges should prefer an owned Logger; two sessions in
// one process must not be forced through shared state.
var (
	globalMu sync.Mutex
	global   *Logger
)

// SetGlobal installs the fallback logger used by Debugf/Errorf.
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

func getGlobal() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// Debugf logs via the global logger if one is installed, else falls back
// to the standard logger.
func Debugf(format string, args ...interface{}) {
	if l := getGlobal(); l != nil {
		l.Debug(format, args...)
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

// Errorf logs via the global logger if one is installed, else falls back
// to the standard logger.
func Errorf(format string, args ...interface{}) {
	if l := getGlobal(); l != nil {
		l.Error(format, args...)
		return
	}
	log.Printf("[ERROR] "+format, args...)
}
