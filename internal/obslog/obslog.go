// Package obslog provides the grading core's process logger. It logs
// via the standard library's log package directly, with no structured
// logging dependency, but adds a level prefix and a correlation-id
// helper so pipeline/batch logs are greppable.
package obslog

import (
	"fmt"
	"log"
	"os"
)

// Logger is a thin wrapper around the standard library logger.
type Logger struct {
	*log.Logger
}

// New returns a Logger writing to stderr with a component prefix.
func New(component string) *Logger {
	return &Logger{log.New(os.Stderr, "["+component+"] ", log.LstdFlags)}
}

func (l *Logger) Infof(format string, args ...any) {
	l.Printf("INFO "+format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Printf("WARN "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Printf("ERROR "+format, args...)
}

// WithCorrelation returns a log-line prefix tying a message to one
// pipeline invocation, for use inline in Infof/Warnf/Errorf calls.
func WithCorrelation(correlationID string) string {
	return fmt.Sprintf("correlation_id=%s", correlationID)
}
