// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytes provides cheap sub-range views over immutable byte
// buffers. All views share the underlying buffer; range arguments out of
// bounds saturate to the buffer ends.
package bytes

import "bytes"

// NotFound is returned by IndexOf and LastIndexOf when the pattern does
// not occur in the buffer.
const NotFound = -1

// Left returns a view of the first n bytes of buf.
func Left(buf []byte, n int) []byte {
	if n <= 0 {
		return buf[:0]
	}
	if n > len(buf) {
		n = len(buf)
	}
	return buf[:n]
}

// Right returns a view of the last n bytes of buf.
func Right(buf []byte, n int) []byte {
	if n <= 0 {
		return buf[len(buf):]
	}
	if n > len(buf) {
		n = len(buf)
	}
	return buf[len(buf)-n:]
}

// Mid returns a view of length bytes starting at start. A negative length
// extends the view to the end of the buffer.
func Mid(buf []byte, start, length int) []byte {
	if start < 0 {
		start = 0
	}
	if start > len(buf) {
		start = len(buf)
	}
	if length < 0 || start+length > len(buf) {
		return buf[start:]
	}
	return buf[start : start+length]
}

// IndexOf returns the offset of the first occurrence of pattern at or
// after from, or NotFound.
func IndexOf(buf, pattern []byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from > len(buf) {
		return NotFound
	}
	i := bytes.Index(buf[from:], pattern)
	if i < 0 {
		return NotFound
	}
	return from + i
}

// LastIndexOf returns the offset of the last occurrence of pattern, or
// NotFound.
func LastIndexOf(buf, pattern []byte) int {
	return bytes.LastIndex(buf, pattern)
}

// Count returns the number of bytes in buf equal to b.
func Count(buf []byte, b byte) int {
	return bytes.Count(buf, []byte{b})
}

// StartsWith reports whether buf begins with prefix.
func StartsWith(buf, prefix []byte) bool {
	return bytes.HasPrefix(buf, prefix)
}

// IsFilledWith reports whether every byte of buf equals b. An empty
// buffer is considered filled.
func IsFilledWith(buf []byte, b byte) bool {
	for _, c := range buf {
		if c != b {
			return false
		}
	}
	return true
}
