// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"testing"
)

func TestRead3Size(t *testing.T) {
	var tests = []struct {
		size [3]uint8
		want uint32
	}{
		{[3]uint8{0, 0, 0}, 0},
		{[3]uint8{0x18, 0, 0}, 0x18},
		{[3]uint8{0x34, 0x12, 0}, 0x1234},
		{[3]uint8{0xFF, 0xFF, 0xFF}, 0xFFFFFF},
	}
	for _, test := range tests {
		if got := Read3Size(test.size); got != test.want {
			t.Errorf("size of %v: expected %#x, got %#x", test.size, test.want, got)
		}
		if back := Write3Size(test.want); back != test.size {
			t.Errorf("write of %#x: expected %v, got %v", test.want, test.size, back)
		}
	}
	if got := Write3Size(0x1000000); got != [3]uint8{0xFF, 0xFF, 0xFF} {
		t.Errorf("oversized value should saturate, got %v", got)
	}
}

func TestAlign(t *testing.T) {
	var tests = []struct {
		val, want4, want8 uint32
	}{
		{0, 0, 0},
		{1, 4, 8},
		{4, 4, 8},
		{7, 8, 8},
		{8, 8, 8},
		{21, 24, 24},
	}
	for _, test := range tests {
		if got := Align4(test.val); got != test.want4 {
			t.Errorf("align4 of %v: expected %v, got %v", test.val, test.want4, got)
		}
		if got := Align8(test.val); got != test.want8 {
			t.Errorf("align8 of %v: expected %v, got %v", test.val, test.want8, got)
		}
	}
}

func TestFileHeaderHelpers(t *testing.T) {
	h := FileHeader{Attributes: FFSAttribFixed | FFSAttribChecksum | 0x38}
	if !h.IsFixed() || !h.HasChecksum() || h.IsLarge() {
		t.Error("attribute helpers disagree with the attribute bits")
	}
	if got := h.AlignmentPower(); got != 16 {
		t.Errorf("alignment power: expected 16, got %v", got)
	}

	ic := IntegrityCheck{Header: 0x34, File: 0x12}
	if got := ic.TailReference(); got != 0x1234 {
		t.Errorf("tail reference: expected 0x1234, got %#x", got)
	}
}

func TestHasSignature(t *testing.T) {
	buf := make([]byte, 32)
	if HasSignature(buf) {
		t.Error("zero buffer must not carry the signature")
	}
	buf[16], buf[17], buf[18], buf[19] = 0x5A, 0xA5, 0xF0, 0x0F
	if !HasSignature(buf) {
		t.Error("signature not recognized")
	}
	if HasSignature(buf[:18]) {
		t.Error("short buffer must not carry the signature")
	}
}
