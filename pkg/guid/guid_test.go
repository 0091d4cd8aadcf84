// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package guid

import (
	"testing"
)

var (
	testGUIDString = "01234567-89AB-CDEF-0123-456789ABCDEF"
	testGUID       = GUID([Size]byte{0x67, 0x45, 0x23, 0x01, 0xAB, 0x89, 0xEF, 0xCD,
		0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF})
	badGUIDStringLong  = "01234567-89AB-CDEF-0123-456789ABCDEF00"
	badGUIDStringChars = "x1234567-89AB-CDEF-0123-456789ABCDEF"
)

func TestParse(t *testing.T) {
	var tests = []struct {
		s   string
		g   *GUID
		msg string
	}{
		{testGUIDString, &testGUID, ""},
		{badGUIDStringLong, nil,
			"guid string has incorrect length, need string of the format \n" + UExample + "\n, got \n" +
				badGUIDStringLong},
		{badGUIDStringChars, nil,
			"guid string not correct, need string of the format \n" + UExample + "\n, got \n" +
				badGUIDStringChars},
	}
	for _, test := range tests {
		g, err := Parse(test.s)
		if test.g != nil {
			if err != nil {
				t.Errorf("error parsing %v: %v", test.s, err)
			} else if *test.g != *g {
				t.Errorf("guid mismatch, expected %v, got %v", *test.g, *g)
			}
		} else if err == nil {
			t.Errorf("should have returned an error for %v", test.s)
		} else if err.Error() != test.msg {
			t.Errorf("error mismatch, expected %q, got %q", test.msg, err.Error())
		}
	}
}

func TestString(t *testing.T) {
	if s := testGUID.String(); s != testGUIDString {
		t.Errorf("string mismatch, expected %v, got %v", testGUIDString, s)
	}
}

func TestFromBytes(t *testing.T) {
	if g := FromBytes(testGUID[:]); g == nil || *g != testGUID {
		t.Errorf("guid mismatch, expected %v, got %v", testGUID, g)
	}
	if g := FromBytes(testGUID[:Size-1]); g != nil {
		t.Errorf("expected nil for short buffer, got %v", g)
	}
}
