// Package monitoring carries the logging streams shared by the scan-matching
// packages.
//
// A Logger has three streams:
//   - ops: actionable warnings, errors, data loss
//   - diag: day-to-day diagnostics and tuning context
//   - trace: per-iteration telemetry
//
// Loggers are values passed to the code that logs, never globals. Indent
// returns a child whose lines are nested one level deeper, so an optimizer
// driven by Run logs beneath the run's own lines.
package monitoring

import (
	"io"
	"log"
	"strings"
)

// Logger writes to up to three streams. A nil *Logger and a Logger with all
// streams disabled are both valid and discard everything.
type Logger struct {
	ops    *log.Logger
	diag   *log.Logger
	trace  *log.Logger
	indent int
}

// Discard is a Logger that writes nothing.
var Discard = &Logger{}

// NewLogger builds a Logger with the given prefix. Pass nil for any writer to
// disable that stream.
func NewLogger(prefix string, ops, diag, trace io.Writer) *Logger {
	return &Logger{
		ops:   newStream(prefix, ops),
		diag:  newStream(prefix, diag),
		trace: newStream(prefix, trace),
	}
}

func newStream(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l *Logger) *Logger {
	if l == nil {
		return Discard
	}
	return l
}

// Indent returns a child logger sharing l's streams, one level deeper.
func (l *Logger) Indent() *Logger {
	if l == nil {
		return Discard
	}
	child := *l
	child.indent++
	return &child
}

// Depth returns the indent level.
func (l *Logger) Depth() int {
	if l == nil {
		return 0
	}
	return l.indent
}

// Opsf logs to the ops stream.
func (l *Logger) Opsf(format string, args ...interface{}) {
	if l != nil {
		l.printf(l.ops, format, args)
	}
}

// Diagf logs to the diag stream.
func (l *Logger) Diagf(format string, args ...interface{}) {
	if l != nil {
		l.printf(l.diag, format, args)
	}
}

// Tracef logs to the trace stream.
func (l *Logger) Tracef(format string, args ...interface{}) {
	if l != nil {
		l.printf(l.trace, format, args)
	}
}

// TraceEnabled reports whether the trace stream is live, so callers can skip
// building expensive trace arguments.
func (l *Logger) TraceEnabled() bool {
	return l != nil && l.trace != nil
}

func (l *Logger) printf(s *log.Logger, format string, args []interface{}) {
	if s == nil {
		return
	}
	if l.indent > 0 {
		format = strings.Repeat("  ", l.indent) + format
	}
	s.Printf(format, args...)
}

// DO NOT add Debugf. Each callsite picks Opsf, Diagf, or Tracef.
