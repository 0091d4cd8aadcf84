// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Microcode update sizes used when the header declares zero.
const (
	DefaultMicrocodeDataSize  = 2000
	DefaultMicrocodeTotalSize = 2048
)

// MicrocodeHeader is the Intel microcode update header referenced by
// FIT microcode entries.
type MicrocodeHeader struct {
	HeaderVersion      uint32 // must be 0x1
	UpdateRevision     uint32
	Date               uint32 // packed BCD, MMDDYYYY
	ProcessorSignature uint32
	Checksum           uint32
	LoaderRevision     uint32 // must be 0x1
	ProcessorFlags     uint32
	DataSize           uint32 // 0 means 2000
	TotalSize          uint32 // 0 means 2048
	Reserved           [3]uint32
}

// MicrocodeHeaderSize is the encoded size of the header.
const MicrocodeHeaderSize = 48

// GetTotalSize returns the update's total size accounting for the
// zero-means-default convention.
func (h *MicrocodeHeader) GetTotalSize() uint32 {
	if h.DataSize > 0 {
		return h.TotalSize
	}
	return DefaultMicrocodeTotalSize
}

// GetDataSize returns the update's data size accounting for the
// zero-means-default convention.
func (h *MicrocodeHeader) GetDataSize() uint32 {
	if h.DataSize > 0 {
		return h.DataSize
	}
	return DefaultMicrocodeDataSize
}

// DateString renders the BCD date as YYYY-MM-DD.
func (h *MicrocodeHeader) DateString() string {
	return fmt.Sprintf("%04x-%02x-%02x", h.Date&0xFFFF, h.Date>>24, h.Date>>16&0xFF)
}

// ParseMicrocodeHeader reads and sanity-checks a microcode update
// header from buf.
func ParseMicrocodeHeader(buf []byte) (*MicrocodeHeader, error) {
	if len(buf) < MicrocodeHeaderSize {
		return nil, fmt.Errorf("buffer of %d bytes is too small for a microcode header", len(buf))
	}
	h := &MicrocodeHeader{}
	if _, err := binaryReadAt(buf, h); err != nil {
		return nil, err
	}
	if h.HeaderVersion != 1 {
		return nil, fmt.Errorf("invalid microcode header version %#x", h.HeaderVersion)
	}
	if h.LoaderRevision != 1 {
		return nil, fmt.Errorf("invalid microcode loader revision %#x", h.LoaderRevision)
	}
	if h.Reserved[0] != 0 || h.Reserved[1] != 0 || h.Reserved[2] != 0 {
		return nil, fmt.Errorf("microcode header reserved bytes are not zero")
	}
	if h.GetTotalSize() < h.GetDataSize()+MicrocodeHeaderSize {
		return nil, fmt.Errorf("microcode total size %#x is smaller than header plus data", h.GetTotalSize())
	}
	if h.GetDataSize()%4 != 0 || h.GetTotalSize()%4 != 0 {
		return nil, fmt.Errorf("microcode sizes are not 32 bit aligned")
	}
	return h, nil
}

// VerifyMicrocodeChecksum sums the whole update as 32 bit words; a
// valid update sums to zero.
func VerifyMicrocodeChecksum(update []byte) error {
	if len(update)%4 != 0 {
		return fmt.Errorf("microcode update size %#x is not 32 bit aligned", len(update))
	}
	var sum uint32
	for i := 0; i < len(update); i += 4 {
		sum += binary.LittleEndian.Uint32(update[i:])
	}
	if sum != 0 {
		return fmt.Errorf("microcode checksum is invalid, sum is %08Xh", sum)
	}
	return nil
}

func binaryReadAt(buf []byte, out interface{}) (int, error) {
	size := binary.Size(out)
	if size < 0 || size > len(buf) {
		return 0, fmt.Errorf("buffer of %d bytes is too small for %T", len(buf), out)
	}
	if err := binary.Read(bytes.NewReader(buf[:size]), binary.LittleEndian, out); err != nil {
		return 0, err
	}
	return size, nil
}
