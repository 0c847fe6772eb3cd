// Package logger provides leveled progress logging for the CLI.
//
// Output goes to stderr so generated artifacts and command output on
// stdout stay clean.
package logger

import (
	"fmt"
	"os"
	"time"
)

// Level controls how much the CLI reports while it works.
type Level int

const (
	// LevelOff disables all logging.
	LevelOff Level = iota
	// LevelInfo reports per-unit progress.
	LevelInfo
	// LevelDebug adds resolution and hashing detail.
	LevelDebug
)

var (
	currentLevel = LevelOff
	startTime    = time.Now()
)

// SetLevel sets the global logging level and resets the elapsed clock.
func SetLevel(level Level) {
	currentLevel = level
	startTime = time.Now()
}

func logf(min Level, tag, format string, args ...any) {
	if currentLevel < min {
		return
	}
	elapsed := time.Since(startTime).Round(time.Millisecond)
	fmt.Fprintf(os.Stderr, "[%s]%s %s\n", elapsed, tag, fmt.Sprintf(format, args...))
}

// Info logs progress, shown with --verbose.
func Info(format string, args ...any) {
	logf(LevelInfo, "", format, args...)
}

// Debug logs detail, shown with --debug.
func Debug(format string, args ...any) {
	logf(LevelDebug, " [DEBUG]", format, args...)
}

// Error logs a failure, shown whenever logging is on.
func Error(format string, args ...any) {
	logf(LevelInfo, " [ERROR]", format, args...)
}
