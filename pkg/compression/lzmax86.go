// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

// LZMAX86 implements the LZMAF86 compression scheme, which is LZMA with
// an x86 branch filter converting relative CALL/JMP target addresses to
// absolute ones to improve the compression ratio of machine code.
type LZMAX86 struct {
	lzma Compressor
}

// Name returns the type of compression employed.
func (c *LZMAX86) Name() string {
	return "LZMAF86"
}

// Decode decodes a byte slice of LZMAF86 data.
func (c *LZMAX86) Decode(encodedData []byte) ([]byte, error) {
	decoded, err := c.lzma.Decode(encodedData)
	if err != nil {
		return nil, err
	}
	x86Convert(decoded, 0, false)
	return decoded, nil
}

// Encode encodes a byte slice with LZMAF86.
func (c *LZMAX86) Encode(decodedData []byte) ([]byte, error) {
	filtered := make([]byte, len(decodedData))
	copy(filtered, decodedData)
	x86Convert(filtered, 0, true)
	return c.lzma.Encode(filtered)
}

func testMSByte(b byte) bool {
	return b == 0 || b == 0xFF
}

// x86Convert applies (encoding true) or removes (encoding false) the x86
// branch filter in place, starting at instruction pointer ip. The state
// machine follows the reference BCJ x86 converter.
func x86Convert(data []byte, ip uint32, encoding bool) {
	if len(data) < 5 {
		return
	}
	var (
		pos  int
		mask uint32
	)
	size := len(data) - 4
	ip += 5

	for {
		p := pos
		for p < size && data[p]&0xFE != 0xE8 {
			p++
		}

		d := p - pos
		pos = p
		if p >= size {
			return
		}
		if d > 2 {
			mask = 0
		} else {
			mask >>= uint(d)
			if mask != 0 && (mask > 4 || mask == 3 || testMSByte(data[p+int(mask>>1)+1])) {
				mask = mask>>1 | 4
				pos++
				continue
			}
		}

		if testMSByte(data[p+4]) {
			v := uint32(data[p+4])<<24 | uint32(data[p+3])<<16 | uint32(data[p+2])<<8 | uint32(data[p+1])
			cur := ip + uint32(pos)
			pos += 5
			if encoding {
				v += cur
			} else {
				v -= cur
			}

			if mask != 0 {
				sh := (mask & 6) << 2
				if testMSByte(byte(v >> sh)) {
					v ^= uint32(0x100)<<sh - 1
					if encoding {
						v += cur
					} else {
						v -= cur
					}
				}
				mask = 0
			}

			data[p+1] = byte(v)
			data[p+2] = byte(v >> 8)
			data[p+3] = byte(v >> 16)
			data[p+4] = byte(0 - (v >> 24 & 1))
		} else {
			mask = mask>>1 | 4
			pos++
		}
	}
}
