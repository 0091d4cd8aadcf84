// Copyright 2021 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestSink(level Level) (*Sink, *bytes.Buffer, *int) {
	var buf bytes.Buffer
	exitCode := -1
	s := New(&buf, level)
	s.exit = func(code int) { exitCode = code }
	s.now = func() time.Time { return time.Date(2018, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s, &buf, &exitCode
}

func TestLevels(t *testing.T) {
	s, buf, _ := newTestSink(LevelWarning)
	s.Warnf("volume at %#x looks odd", 0x1000)
	s.Errorf("cannot read image")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "[WARN] volume at 0x1000 looks odd") {
		t.Errorf("unexpected warning line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] cannot read image") {
		t.Errorf("unexpected error line %q", lines[1])
	}
	if !strings.HasPrefix(lines[0], "2018/06/01 12:00:00 ") {
		t.Errorf("missing timestamp in %q", lines[0])
	}
}

func TestErrorLevelDropsWarnings(t *testing.T) {
	s, buf, _ := newTestSink(LevelError)
	s.Warnf("should be dropped")
	s.Errorf("should pass")
	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("warning should have been gated: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "should pass") {
		t.Errorf("error should have been emitted: %q", buf.String())
	}
}

func TestFatalf(t *testing.T) {
	s, buf, exitCode := newTestSink(LevelError)
	s.Fatalf("image %s is unreadable", "flash.bin")
	if *exitCode != 1 {
		t.Errorf("expected exit status 1, got %d", *exitCode)
	}
	if !strings.Contains(buf.String(), "[FATAL] image flash.bin is unreadable") {
		t.Errorf("unexpected fatal line %q", buf.String())
	}
}
