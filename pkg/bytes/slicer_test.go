// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytes

import (
	"bytes"
	"testing"
)

var sample = []byte{0, 1, 2, 3, 4, 5, 6, 7}

func TestLeftRightMid(t *testing.T) {
	var tests = []struct {
		name string
		got  []byte
		want []byte
	}{
		{"left", Left(sample, 3), []byte{0, 1, 2}},
		{"left saturated", Left(sample, 100), sample},
		{"left negative", Left(sample, -1), []byte{}},
		{"right", Right(sample, 2), []byte{6, 7}},
		{"right saturated", Right(sample, 100), sample},
		{"mid", Mid(sample, 2, 3), []byte{2, 3, 4}},
		{"mid to end", Mid(sample, 5, -1), []byte{5, 6, 7}},
		{"mid saturated", Mid(sample, 5, 100), []byte{5, 6, 7}},
		{"mid past end", Mid(sample, 100, 2), []byte{}},
	}
	for _, test := range tests {
		if !bytes.Equal(test.got, test.want) {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, test.got)
		}
	}
}

func TestIndexOf(t *testing.T) {
	buf := []byte("_FVH...._FVH")
	if i := IndexOf(buf, []byte("_FVH"), 0); i != 0 {
		t.Errorf("expected 0, got %v", i)
	}
	if i := IndexOf(buf, []byte("_FVH"), 1); i != 8 {
		t.Errorf("expected 8, got %v", i)
	}
	if i := IndexOf(buf, []byte("_FVH"), 9); i != NotFound {
		t.Errorf("expected NotFound, got %v", i)
	}
	if i := LastIndexOf(buf, []byte("_FVH")); i != 8 {
		t.Errorf("expected 8, got %v", i)
	}
}

func TestCountFill(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0x00, 0xFF}
	if c := Count(buf, 0xFF); c != 3 {
		t.Errorf("expected 3, got %v", c)
	}
	if IsFilledWith(buf, 0xFF) {
		t.Error("buffer is not filled with 0xFF")
	}
	if !IsFilledWith(buf[:2], 0xFF) {
		t.Error("buffer is filled with 0xFF")
	}
	if !IsFilledWith(nil, 0x00) {
		t.Error("empty buffer should count as filled")
	}
}

func TestRanges(t *testing.T) {
	rs := Ranges{{Offset: 4, Length: 2}, {Offset: 0, Length: 2}, {Offset: 2, Length: 2}}
	rs.SortAndMerge()
	if len(rs) != 1 || rs[0].Offset != 0 || rs[0].Length != 6 {
		t.Errorf("expected one merged range of 6 bytes, got %v", rs)
	}
	if got := rs.Compile(sample); !bytes.Equal(got, sample[:6]) {
		t.Errorf("expected %v, got %v", sample[:6], got)
	}
	if !(Range{Offset: 0, Length: 4}).Contains(Range{Offset: 1, Length: 2}) {
		t.Error("expected containment")
	}
	if (Range{Offset: 0, Length: 4}).Contains(Range{Offset: 2, Length: 4}) {
		t.Error("expected no containment")
	}
	if !(Range{Offset: 0, Length: 4}).Intersect(Range{Offset: 2, Length: 4}) {
		t.Error("expected intersection")
	}
}
