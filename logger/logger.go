/*
 Copyright 2013-2014 Canonical Ltd.

 This program is free software: you can redistribute it and/or modify it
 under the terms of the GNU General Public License version 3, as published
 by the Free Software Foundation.

 This program is distributed in the hope that it will be useful, but
 WITHOUT ANY WARRANTY; without even the implied warranties of
 MERCHANTABILITY, SATISFACTORY QUALITY, or FITNESS FOR A PARTICULAR
 PURPOSE.  See the GNU General Public License for more details.

 You should have received a copy of the GNU General Public License along
 with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package logger defines a simple logger API with level of logging control.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
)

// Logger is a simple logger interface with logging at levels.
type Logger interface {
	// Errorf logs an error.
	Errorf(format string, v ...interface{})
	// Fatalf logs an error and exits the program with os.Exit(1).
	Fatalf(format string, v ...interface{})
	// PanicStackf logs an error message and a stacktrace, for use
	// in panic recovery.
	PanicStackf(format string, v ...interface{})
	// Infof logs an info message.
	Infof(format string, v ...interface{})
	// Debugf logs a debug message.
	Debugf(format string, v ...interface{})
}

type simpleLogger struct {
	outputFunc func(calldepth int, msg string) error
	nlevel     int
	prefix     string
}

const calldepthBase = 3

const (
	lError = iota
	lInfo
	lDebug
)

var levelToNLevel = map[string]int{
	"error": lError,
	"info":  lInfo,
	"debug": lDebug,
}

// ValidLevel reports whether level is one of the levels
// NewSimpleLogger understands.
func ValidLevel(level string) bool {
	_, ok := levelToNLevel[level]
	return ok
}

// NewSimpleLogger creates a logger logging only up to the given level.
// level can be in order: "error", "info", "debug".
func NewSimpleLogger(w io.Writer, level string) Logger {
	nlevel := levelToNLevel[level]
	return &simpleLogger{
		outputFunc: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds).Output,
		nlevel:     nlevel,
	}
}

// WithPrefix returns a logger that writes through lg, prepending
// prefix to every message. Loggers not created by this package are
// wrapped as they are.
func WithPrefix(lg Logger, prefix string) Logger {
	if sl, ok := lg.(*simpleLogger); ok {
		return &simpleLogger{
			outputFunc: sl.outputFunc,
			nlevel:     sl.nlevel,
			prefix:     sl.prefix + prefix,
		}
	}
	return &prefixed{lg, prefix}
}

func (lg *simpleLogger) output(format string, v ...interface{}) {
	lg.outputFunc(calldepthBase, fmt.Sprintf(format, v...))
}

func (lg *simpleLogger) Errorf(format string, v ...interface{}) {
	lg.output("ERROR "+lg.prefix+format, v...)
}

var osExit = os.Exit // for testing

func (lg *simpleLogger) Fatalf(format string, v ...interface{}) {
	lg.output("ERROR "+lg.prefix+format, v...)
	osExit(1)
}

func (lg *simpleLogger) PanicStackf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	stack := make([]byte, 8*1024) // Stack writes less but doesn't fail
	sz := runtime.Stack(stack, false)
	lg.output("ERROR(PANIC) %s%s:\n%s", lg.prefix, msg, stack[:sz])
}

func (lg *simpleLogger) Infof(format string, v ...interface{}) {
	if lg.nlevel >= lInfo {
		lg.output("INFO "+lg.prefix+format, v...)
	}
}

func (lg *simpleLogger) Debugf(format string, v ...interface{}) {
	if lg.nlevel >= lDebug {
		lg.output("DEBUG "+lg.prefix+format, v...)
	}
}

type prefixed struct {
	Logger
	prefix string
}

func (p *prefixed) Errorf(format string, v ...interface{}) { p.Logger.Errorf(p.prefix+format, v...) }
func (p *prefixed) Fatalf(format string, v ...interface{}) { p.Logger.Fatalf(p.prefix+format, v...) }
func (p *prefixed) PanicStackf(format string, v ...interface{}) {
	p.Logger.PanicStackf(p.prefix+format, v...)
}
func (p *prefixed) Infof(format string, v ...interface{})  { p.Logger.Infof(p.prefix+format, v...) }
func (p *prefixed) Debugf(format string, v ...interface{}) { p.Logger.Debugf(p.prefix+format, v...) }

type nopLogger struct{}

// NewNopLogger returns a logger that discards everything; it is what
// the library packages use when no logger is given. Fatalf still exits.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Errorf(format string, v ...interface{})      {}
func (nopLogger) Fatalf(format string, v ...interface{})      { osExit(1) }
func (nopLogger) PanicStackf(format string, v ...interface{}) {}
func (nopLogger) Infof(format string, v ...interface{})       {}
func (nopLogger) Debugf(format string, v ...interface{})      {}
