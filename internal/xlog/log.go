// Package xlog provides the namespaced debug logger used across the
// engine, transport and namespace layers, grounded on the teacher's
// pkg/log package: a per-component prefix, a DEBUG-env-var namespace
// filter (shell-glob style, "*" wildcard), and colored level output.
package xlog

import (
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/gookit/color"
)

// DEBUG gates all Debug output; it defaults to true when the DEBUG
// environment variable is set to anything non-empty.
var DEBUG = os.Getenv("DEBUG") != ""

// Output is the writer New hands to each Logger it creates; changing it
// affects only Loggers created afterwards.
var Output = os.Stderr

// Logger is a namespaced logger, e.g. "engine:session" or "socket:adapter".
type Logger struct {
	*log.Logger
	namespace string
	filter    *regexp.Regexp
}

// New creates a Logger prefixed with namespace.
func New(namespace string) *Logger {
	l := &Logger{
		Logger:    log.New(Output, "", log.LstdFlags),
		namespace: namespace,
	}
	if pattern := os.Getenv("DEBUG"); pattern != "" {
		quoted := regexp.QuoteMeta(strings.TrimSpace(pattern))
		quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
		l.filter = regexp.MustCompile("^" + quoted + "$")
	}
	return l
}

func (l *Logger) enabled() bool {
	if !DEBUG {
		return false
	}
	if l.filter == nil {
		return true
	}
	return l.filter.MatchString(l.namespace)
}

// Debug logs a formatted message, gated by DEBUG and the DEBUG namespace
// filter.
func (l *Logger) Debug(format string, args ...any) {
	if l.enabled() {
		l.Logger.Println(color.Debug.Sprintf("["+l.namespace+"] "+format, args...))
	}
}

// Info logs unconditionally with the info color.
func (l *Logger) Info(format string, args ...any) {
	l.Logger.Println(color.Info.Sprintf("["+l.namespace+"] "+format, args...))
}

// Warn logs unconditionally with the warning color.
func (l *Logger) Warn(format string, args ...any) {
	l.Logger.Println(color.Warn.Sprintf("["+l.namespace+"] "+format, args...))
}

// Error logs unconditionally with the danger color.
func (l *Logger) Error(format string, args ...any) {
	l.Logger.Println(color.Danger.Sprintf("["+l.namespace+"] "+format, args...))
}
