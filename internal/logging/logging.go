// Package logging provides simple structured logging helpers.
package logging

import (
	"os"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
)

// sensitivePatterns matches data that must never reach the log output.
// Clone URLs are the main risk: users paste https URLs with embedded
// tokens when registering private repositories.
var sensitivePatterns = []*regexp.Regexp{
	// key=value or key:value secrets
	regexp.MustCompile(`(?i)(api[_-]?key|auth[_-]?token|access[_-]?token|secret[_-]?key|password|passwd|pwd)\s*[=:]\s*[^\s]+`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[^\s]+`),
	// git URLs with embedded credentials
	regexp.MustCompile(`ssh://[^@\s]+@`),
	regexp.MustCompile(`https?://[^:@\s]+:[^@\s]+@`),
}

// RedactSensitive replaces potentially sensitive data in a string with
// [REDACTED]. Apply it to anything derived from resource URLs before logging.
func RedactSensitive(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}

	return result
}

// Logger wraps the application logger
type Logger struct {
	*log.Logger
}

// New creates a new logger instance
func New(debug bool) *Logger {
	l := log.New(os.Stderr)
	l.SetReportTimestamp(true)
	l.SetTimeFormat(time.Kitchen)

	if debug {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}

	return &Logger{Logger: l}
}
