// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integrity

import "testing"

func TestChecksum8(t *testing.T) {
	var tests = []struct {
		buf []byte
		sum uint8
	}{
		{[]byte{}, 0},
		{[]byte{1}, 0xFF},
		{[]byte{0x20, 0xF0, 0x10}, 0xE0},
		{[]byte{0xFF, 0x01}, 0},
	}
	for _, test := range tests {
		if sum := Checksum8(test.buf); sum != test.sum {
			t.Errorf("checksum of %v: expected %#02x, got %#02x", test.buf, test.sum, sum)
		}
		// The checksum is the value that zeroes the total.
		if total := Sum8(test.buf) + Checksum8(test.buf); total != 0 {
			t.Errorf("sum plus checksum of %v should be zero, got %#02x", test.buf, total)
		}
	}
}

func TestChecksum16(t *testing.T) {
	if _, err := Checksum16([]byte{1}); err == nil {
		t.Error("expected an error for odd length")
	}
	sum, err := Checksum16([]byte{0x34, 0x12, 0x02, 0x00})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expected := uint16(-(0x1234 + 0x0002) & 0xFFFF); sum != expected {
		t.Errorf("expected %#04x, got %#04x", expected, sum)
	}
}

func TestCRC32(t *testing.T) {
	// Reference IEEE value for "123456789".
	if crc := CRC32(0, []byte("123456789")); crc != 0xCBF43926 {
		t.Errorf("expected 0xCBF43926, got %#08x", crc)
	}
	// Continuation must match a single-shot computation.
	full := CRC32(0, []byte("123456789"))
	cont := CRC32(CRC32(0, []byte("12345")), []byte("6789"))
	if full != cont {
		t.Errorf("continued CRC %#08x differs from full %#08x", cont, full)
	}
}

func TestSum256(t *testing.T) {
	digest := Sum256(nil)
	// SHA-256 of the empty string.
	if digest[0] != 0xE3 || digest[31] != 0x55 {
		t.Errorf("unexpected digest %x", digest)
	}
}
