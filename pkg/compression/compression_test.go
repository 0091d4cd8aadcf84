// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"bytes"
	"testing"
)

// testPayload looks enough like x86 code to exercise the F86 filter.
var testPayload = func() []byte {
	var buf bytes.Buffer
	for i := 0; i < 64; i++ {
		buf.Write([]byte{0x55, 0x89, 0xE5, 0xE8, byte(i), 0x00, 0x00, 0x00, 0x5D, 0xC3})
	}
	return buf.Bytes()
}()

func TestLZMARoundTrip(t *testing.T) {
	c := &LZMA{}
	encoded, err := c.Encode(testPayload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded, testPayload) {
		t.Error("roundtrip mismatch")
	}
}

func TestLZMAX86RoundTrip(t *testing.T) {
	c := &LZMAX86{&LZMA{}}
	encoded, err := c.Encode(testPayload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded, testPayload) {
		t.Error("roundtrip mismatch")
	}
}

func TestX86ConvertRoundTrip(t *testing.T) {
	converted := make([]byte, len(testPayload))
	copy(converted, testPayload)
	x86Convert(converted, 0, true)
	if bytes.Equal(converted, testPayload) {
		t.Fatal("filter did not change any CALL target")
	}
	x86Convert(converted, 0, false)
	if !bytes.Equal(converted, testPayload) {
		t.Error("roundtrip mismatch")
	}
}

func TestDecompressNotCompressed(t *testing.T) {
	algorithm, decompressed, _, err := Decompress(testPayload, NotCompressed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if algorithm != AlgorithmNone {
		t.Errorf("expected AlgorithmNone, got %v", algorithm)
	}
	if !bytes.Equal(decompressed, testPayload) {
		t.Error("body should be passed through unchanged")
	}
}

func TestDecompressCustomized(t *testing.T) {
	encoded, err := (&LZMA{}).Encode(testPayload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	algorithm, decompressed, _, err := Decompress(encoded, CustomizedCompression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if algorithm != AlgorithmLZMA {
		t.Errorf("expected AlgorithmLZMA, got %v", algorithm)
	}
	if !bytes.Equal(decompressed, testPayload) {
		t.Error("decompressed payload mismatch")
	}

	// Intel modified LZMA carries a stray 4-byte header before the
	// stream.
	shifted := append([]byte{0xEE, 0x4E, 0x58, 0x98}, encoded...)
	algorithm, decompressed, _, err = Decompress(shifted, CustomizedCompression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if algorithm != AlgorithmIntelLZMA {
		t.Errorf("expected AlgorithmIntelLZMA, got %v", algorithm)
	}
	if !bytes.Equal(decompressed, testPayload) {
		t.Error("decompressed payload mismatch")
	}
}

func TestDecompressGarbage(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xFF}, 64)
	if _, _, _, err := Decompress(garbage, CustomizedCompression); err == nil {
		t.Error("expected an error for garbage LZMA input")
	}
	if _, _, _, err := Decompress(garbage[:4], StandardCompression); err == nil {
		t.Error("expected an error for a truncated compression header")
	}
	if _, _, _, err := Decompress(garbage, 0x7F); err == nil {
		t.Error("expected an error for an unknown compression type")
	}
}

func TestCompressorFromGUID(t *testing.T) {
	if c := CompressorFromGUID(&LZMAGUID); c == nil || c.Name() != "LZMA" {
		t.Errorf("expected LZMA, got %v", c)
	}
	if c := CompressorFromGUID(&LZMAX86GUID); c == nil || c.Name() != "LZMAF86" {
		t.Errorf("expected LZMAF86, got %v", c)
	}
	if c := CompressorFromGUID(&TianoGUID); c != nil {
		t.Errorf("Tiano GUID has no generic codec, got %v", c)
	}
}

func TestEFIDecompressTruncated(t *testing.T) {
	if _, err := TianoDecompress([]byte{1, 2, 3}); err == nil {
		t.Error("expected an error for a truncated buffer")
	}
	if _, err := EFI11Decompress([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 1}); err == nil {
		t.Error("expected an error when the compressed size overruns the buffer")
	}
}
