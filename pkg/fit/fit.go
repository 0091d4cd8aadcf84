// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fit implements the Firmware Interface Table entry format. The
// table itself is located through the parse tree; this package only
// knows the binary layout.
package fit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/bytesextra"
)

// Signature is the Address field value of the FIT header entry.
var Signature = []byte("_FIT_   ")

// PointerOffset is the distance of the FIT pointer from the end of the
// last VTF (and from physical address 0x100000000).
const PointerOffset = 0x40

// EntrySize is the size of one FIT entry.
const EntrySize = 16

// EntryType is the 7 bit type of a FIT entry.
type EntryType uint8

// FIT entry types.
const (
	EntryTypeHeader         EntryType = 0x00
	EntryTypeMicrocode      EntryType = 0x01
	EntryTypeBIOSACM        EntryType = 0x02
	EntryTypeBIOSStartup    EntryType = 0x07
	EntryTypeTPMPolicy      EntryType = 0x08
	EntryTypeBIOSPolicy     EntryType = 0x09
	EntryTypeTXTPolicy      EntryType = 0x0A
	EntryTypeKeyManifest    EntryType = 0x0B
	EntryTypeBootPolicy     EntryType = 0x0C
	EntryTypeCSESecureBoot  EntryType = 0x10
	EntryTypeJMPDebugPolicy EntryType = 0x2F
	EntryTypeEmpty          EntryType = 0x7F
)

var entryTypeNames = map[EntryType]string{
	EntryTypeHeader:         "Header",
	EntryTypeMicrocode:      "Microcode",
	EntryTypeBIOSACM:        "BIOS ACM",
	EntryTypeBIOSStartup:    "BIOS Init",
	EntryTypeTPMPolicy:      "TPM Policy",
	EntryTypeBIOSPolicy:     "BIOS Policy Data",
	EntryTypeTXTPolicy:      "TXT Conf Policy",
	EntryTypeKeyManifest:    "BG Key Manifest",
	EntryTypeBootPolicy:     "BG Boot Policy",
	EntryTypeCSESecureBoot:  "CSE SecureBoot",
	EntryTypeJMPDebugPolicy: "JMP Debug Policy",
	EntryTypeEmpty:          "Empty",
}

func (t EntryType) String() string {
	if s, ok := entryTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown (%02Xh)", uint8(t))
}

// Address64 is a 64 bit physical address.
type Address64 uint64

// Pointer returns the address for pointer arithmetic.
func (addr Address64) Pointer() uint64 { return uint64(addr) }

func (addr Address64) String() string { return fmt.Sprintf("0x%x", addr.Pointer()) }

// Uint24 is a 24 bit unsigned little-endian integer value.
type Uint24 struct {
	Value [3]byte
}

// Uint32 returns the value as uint32.
func (size Uint24) Uint32() uint32 {
	b := make([]byte, 4)
	copy(b, size.Value[:])
	return binary.LittleEndian.Uint32(b)
}

// SetUint32 sets the value. See also Uint32.
func (size *Uint24) SetUint32(newValue uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, newValue)
	copy(size.Value[:], b)
}

// EntryVersion is the BCD-coded version of a FIT entry.
type EntryVersion uint16

// Major returns the major part of the entry version.
func (ver EntryVersion) Major() uint8 { return uint8(ver >> 8) }

// Minor returns the minor part of the entry version.
func (ver EntryVersion) Minor() uint8 { return uint8(ver) }

func (ver EntryVersion) String() string {
	return fmt.Sprintf("%x.%x", ver.Major(), ver.Minor())
}

// TypeAndIsChecksumValid combines the 7 bit type with the
// checksum-valid flag in the top bit.
type TypeAndIsChecksumValid uint8

// IsChecksumValid reports whether the entry carries a checksum.
func (f TypeAndIsChecksumValid) IsChecksumValid() bool {
	return f&0x80 != 0
}

// Type returns the entry type.
func (f TypeAndIsChecksumValid) Type() EntryType {
	return EntryType(f & 0x7F)
}

// EntryHeaders implements a "FIT Entry Format" record.
type EntryHeaders struct {
	Address Address64

	Size Uint24

	// Reserved should always be equal to zero.
	Reserved uint8

	Version EntryVersion

	TypeAndIsChecksumValid TypeAndIsChecksumValid

	Checksum uint8
}

// Type returns the entry type.
func (hdr *EntryHeaders) Type() EntryType {
	return hdr.TypeAndIsChecksumValid.Type()
}

// IsChecksumValid reports whether the entry carries a checksum.
func (hdr *EntryHeaders) IsChecksumValid() bool {
	return hdr.TypeAndIsChecksumValid.IsChecksumValid()
}

// Table is the FIT entry headers table.
type Table []EntryHeaders

// ParseEntryHeadersFrom parses a single entry.
func ParseEntryHeadersFrom(r io.Reader) (*EntryHeaders, error) {
	entryHeaders := EntryHeaders{}
	if err := binary.Read(r, binary.LittleEndian, &entryHeaders); err != nil {
		return nil, fmt.Errorf("unable to parse FIT entry headers: %w", err)
	}

	return &entryHeaders, nil
}

// ParseTable parses a FIT table from `b`.
func ParseTable(b []byte) (Table, error) {
	return ParseTableFrom(bytesextra.NewReadWriteSeeker(b))
}

// ParseTableFrom parses a FIT table from the current position of r to
// its end.
func ParseTableFrom(r io.ReadSeeker) (Table, error) {
	var result Table
	for {
		entryHeaders, err := ParseEntryHeadersFrom(r)
		if err != nil {
			if isEOF(err) {
				break
			}
			return nil, fmt.Errorf("unable to parse FIT headers table: %w", err)
		}
		result = append(result, *entryHeaders)
	}
	return result, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ParseTableFromPrefix parses the table at the start of b. The header
// entry's Size field counts the table's entries and bounds the parse.
func ParseTableFromPrefix(b []byte) (Table, error) {
	if len(b) < EntrySize {
		return nil, fmt.Errorf("buffer of %d bytes is too small for a FIT header entry", len(b))
	}
	header, err := ParseEntryHeadersFrom(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	entries := int(header.Size.Uint32())
	if entries == 0 {
		return nil, fmt.Errorf("FIT header declares an empty table")
	}
	total := entries * EntrySize
	if total > len(b) {
		return nil, fmt.Errorf("FIT table of %d entries overruns the buffer of %d bytes", entries, len(b))
	}
	return ParseTable(b[:total])
}

// First returns the first entry with the selected entry type, or nil.
func (table Table) First(entryType EntryType) *EntryHeaders {
	for idx, headers := range table {
		if headers.Type() == entryType {
			return &table[idx]
		}
	}
	return nil
}

// Validate checks the structural invariants of a parsed table: the
// leading header entry with the FIT signature, reserved bytes, and the
// zero 8 bit checksum when the header declares one.
func (table Table) Validate(raw []byte) error {
	var result *multierror.Error

	if len(table) == 0 {
		return multierror.Append(result, fmt.Errorf("table is empty")).ErrorOrNil()
	}

	first := table[0]
	var addr [8]byte
	binary.LittleEndian.PutUint64(addr[:], first.Address.Pointer())
	if !bytes.Equal(addr[:], Signature) {
		result = multierror.Append(result, fmt.Errorf("first entry Address is %q, not the FIT signature", addr))
	}
	if first.Type() != EntryTypeHeader {
		result = multierror.Append(result, fmt.Errorf("first entry type is %s, not Header", first.Type()))
	}

	for idx, headers := range table {
		if headers.Reserved != 0 {
			result = multierror.Append(result, fmt.Errorf("entry %d has non-zero Reserved byte %02Xh", idx, headers.Reserved))
		}
	}

	if first.IsChecksumValid() && len(raw) >= EntrySize {
		var sum uint8
		for i, b := range raw {
			// The checksum byte itself is excluded.
			if i == 15 {
				continue
			}
			sum += b
		}
		if sum+first.Checksum != 0 {
			result = multierror.Append(result, fmt.Errorf("table checksum is %02Xh, should be %02Xh", first.Checksum, -sum))
		}
	}

	return result.ErrorOrNil()
}
