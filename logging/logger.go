package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Logger writes leveled lines with trailing key=value pairs.
type Logger struct {
	prefix string
	debug  bool
	logger *log.Logger
}

// NewLogger creates a logger writing to stdout. Debug lines are dropped
// unless debug is true.
func NewLogger(prefix string, debug bool) *Logger {
	return NewLoggerTo(os.Stdout, prefix, debug)
}

func NewLoggerTo(w io.Writer, prefix string, debug bool) *Logger {
	return &Logger{
		prefix: prefix,
		debug:  debug,
		logger: log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}
}

// Discard returns a logger that writes nowhere. Useful in tests.
func Discard() *Logger {
	return NewLoggerTo(io.Discard, "discard", false)
}

func (l *Logger) DebugEnabled() bool {
	return l.debug
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV("INFO", msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV("WARN", msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV("ERROR", msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	if !l.debug {
		return
	}
	l.logWithKV("DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level, msg string, keysAndValues ...interface{}) {
	var sb strings.Builder
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	// odd trailing key
	if len(keysAndValues)%2 == 1 {
		fmt.Fprintf(&sb, " %v=?", keysAndValues[len(keysAndValues)-1])
	}
	// depth 3: caller of Info/Warn/Error/Debug
	l.logger.Output(3, fmt.Sprintf("[%s] %s%s", level, msg, sb.String()))
}
