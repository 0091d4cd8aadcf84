// Copyright 2021 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log provides the leveled logger used by the parser tools.
// Diagnostics that relate to a specific tree node go to the parser's
// message log instead; this logger carries the tools' own conditions:
// unreadable inputs, unexpected states, fatal setup failures.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level gates how much a logger emits. Errors always pass.
type Level uint8

// Levels, from least to most verbose.
const (
	LevelError Level = iota
	LevelWarning
)

// Logger is the sink the module logs to.
type Logger interface {
	// Warnf logs a warning message.
	Warnf(format string, args ...interface{})

	// Errorf logs an error message.
	Errorf(format string, args ...interface{})

	// Fatalf logs an error message and exits the application.
	Fatalf(format string, args ...interface{})
}

// Sink is a Logger writing tagged, timestamped lines to one writer. It
// is safe for concurrent use.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
	exit  func(int)
	now   func() time.Time
}

// New returns a Sink writing to w, emitting messages up to level.
func New(w io.Writer, level Level) *Sink {
	return &Sink{
		w:     w,
		level: level,
		exit:  os.Exit,
		now:   time.Now,
	}
}

func (s *Sink) logf(level Level, tag, format string, args ...interface{}) {
	if level > s.level {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s [%s] %s\n",
		s.now().Format("2006/01/02 15:04:05"), tag, fmt.Sprintf(format, args...))
}

// Warnf implements Logger.
func (s *Sink) Warnf(format string, args ...interface{}) {
	s.logf(LevelWarning, "WARN", format, args...)
}

// Errorf implements Logger.
func (s *Sink) Errorf(format string, args ...interface{}) {
	s.logf(LevelError, "ERROR", format, args...)
}

// Fatalf implements Logger. It exits with status 1 after writing.
func (s *Sink) Fatalf(format string, args ...interface{}) {
	s.logf(LevelError, "FATAL", format, args...)
	s.exit(1)
}

// DefaultLogger is the logger the package-level helpers delegate to.
// Tools lower its level instead of silencing individual call sites.
var DefaultLogger Logger = New(os.Stderr, LevelWarning)

// Warnf logs a warning message through the default logger.
func Warnf(format string, args ...interface{}) {
	DefaultLogger.Warnf(format, args...)
}

// Errorf logs an error message through the default logger.
func Errorf(format string, args ...interface{}) {
	DefaultLogger.Errorf(format, args...)
}

// Fatalf logs an error message through the default logger and exits
// the application.
func Fatalf(format string, args ...interface{}) {
	DefaultLogger.Fatalf(format, args...)
}
