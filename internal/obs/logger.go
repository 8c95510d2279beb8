// Package obs carries the execution core's ambient observability concerns:
// structured logging, lightweight counters, and runtime resource stats.
// Per design note §9, nothing here is a package-level singleton — every
// component that wants one is constructed with an explicit *Logger.
package obs

import (
	"github.com/yanun0323/logs"
)

// Logger is a component-scoped wrapper over github.com/yanun0323/logs.
// The underlying library is itself a global sink (as most Go logging
// libraries are); what we avoid is *our* code reaching for a package-level
// logger instead of one passed in at construction.
type Logger struct {
	component string
}

// NewLogger returns a logger that prefixes every line with component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) prefix(msg string) string {
	if l == nil || l.component == "" {
		return msg
	}
	return l.component + ": " + msg
}

// Info logs an informational line.
func (l *Logger) Info(msg string) {
	logs.Info(l.prefix(msg))
}

// Infof logs a formatted informational line.
func (l *Logger) Infof(format string, args ...any) {
	logs.Infof(l.prefix(format), args...)
}

// Warnf logs a formatted warning line.
func (l *Logger) Warnf(format string, args ...any) {
	logs.Warnf(l.prefix(format), args...)
}

// Errorf logs a formatted error line.
func (l *Logger) Errorf(format string, args ...any) {
	logs.Errorf(l.prefix(format), args...)
}

// With returns a child logger scoped to component/sub.
func (l *Logger) With(sub string) *Logger {
	if l == nil || l.component == "" {
		return NewLogger(sub)
	}
	return NewLogger(l.component + "." + sub)
}
