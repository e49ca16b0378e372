// Package bootlog is the diagnostic-output facility the bootloader and
// its store use, sized to match how the rest of this codebase logs: the
// bare-metal layer writes raw strings to a UART, its host tools print
// straight to stderr, and neither reaches for a structured-logging
// framework.
package bootlog

import (
	"fmt"
	"log"
	"os"
)

// Logger is the minimal facility the orchestrator and store use for
// diagnostics. No error is ever propagated to user space by the engine
// itself; Logger exists purely so an integrator can observe what
// happened.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// nopLogger discards everything. Used whenever a nil Logger is passed to
// a constructor that requires one, so callers never need to nil-check
// before logging.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}

// Nop is a Logger that discards every call.
var Nop Logger = nopLogger{}

// OrNop returns l, or Nop if l is nil. Callers use this instead of
// scattering nil checks: `l := bootlog.OrNop(l)` once at construction.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop
	}
	return l
}

// StderrLogger wraps a standard library *log.Logger writing to stderr,
// with a level prefix per call, matching the teacher's
// fmt.Fprintf(os.Stderr, ...) convention in its host-side tools.
type StderrLogger struct {
	logger *log.Logger
}

// NewStderrLogger builds a StderrLogger with the given prefix (for
// example "swapbootsim: ").
func NewStderrLogger(prefix string) *StderrLogger {
	return &StderrLogger{logger: log.New(os.Stderr, prefix, log.LstdFlags)}
}

func (s *StderrLogger) Debugf(format string, args ...interface{}) {
	s.logger.Print("DEBUG " + fmt.Sprintf(format, args...))
}

func (s *StderrLogger) Infof(format string, args ...interface{}) {
	s.logger.Print("INFO " + fmt.Sprintf(format, args...))
}

func (s *StderrLogger) Warnf(format string, args ...interface{}) {
	s.logger.Print("WARN " + fmt.Sprintf(format, args...))
}

var _ Logger = (*StderrLogger)(nil)
