// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bootguard implements the Intel Boot Guard structures carried
// by FIT entries: the startup ACM header, the key manifest and the boot
// policy manifest with its chained elements.
package bootguard

import (
	"bytes"
	"encoding/binary"
	"fmt"

	ubytes "github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
)

// Structure tags. Every Boot Guard structure opens with one.
var (
	KeyManifestTag          = []byte("__KEYM__")
	BootPolicyTag           = []byte("__ACBP__")
	IBBElementTag           = []byte("__IBBS__")
	PlatformManufacturerTag = []byte("__PMDA__")
	SignatureElementTag     = []byte("__PMSG__")
)

// ACMModuleType is the expected ModuleType of a BIOS startup ACM.
const ACMModuleType = 2

// ACMModuleVendorIntel is the only valid ACM vendor.
const ACMModuleVendorIntel = 0x8086

// ACMHeader is the header of an authenticated code module.
type ACMHeader struct {
	ModuleType    uint16
	ModuleSubtype uint16
	HeaderLength  uint32 // in dwords
	HeaderVersion uint32
	ChipsetID     uint16
	Flags         uint16
	ModuleVendor  uint32
	Date          uint32 // packed BCD, YYYYMMDD
	ModuleSize    uint32 // in dwords
	AcmSvn        uint16
	SeSvn         uint16
	CodeControl   uint32
	ErrorEntry    uint32
	GdtLimit      uint32
	GdtBase       uint32
	SegSel        uint32
	EntryPoint    uint32
	Reserved      [64]uint8
	KeySize       uint32 // in dwords
	ScratchSize   uint32
	RsaPubKey     [256]uint8
	RsaPubExp     uint32
	RsaSig        [256]uint8
}

// ACMHeaderSize is the encoded size of the ACM header.
const ACMHeaderSize = 644

// DateString renders the BCD date as YYYY-MM-DD.
func (h *ACMHeader) DateString() string {
	return fmt.Sprintf("%04x-%02x-%02x", h.Date>>16, h.Date>>8&0xFF, h.Date&0xFF)
}

// ParseACMHeader reads and sanity-checks an ACM header.
func ParseACMHeader(buf []byte) (*ACMHeader, error) {
	h := &ACMHeader{}
	if binary.Size(h) > len(buf) {
		return nil, fmt.Errorf("buffer of %d bytes is too small for an ACM header", len(buf))
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, h); err != nil {
		return nil, err
	}
	if h.ModuleType != ACMModuleType {
		return nil, fmt.Errorf("ACM module type is %d, should be %d", h.ModuleType, ACMModuleType)
	}
	if h.ModuleVendor != ACMModuleVendorIntel {
		return nil, fmt.Errorf("ACM module vendor is %04Xh, should be Intel (8086h)", h.ModuleVendor)
	}
	return h, nil
}

// Hash algorithm identifiers used in Boot Guard hash structures.
const (
	AlgSHA1   uint16 = 0x0004
	AlgSHA256 uint16 = 0x000B
	AlgSM3    uint16 = 0x0012
)

// HashStructure is a sized digest with its algorithm identifier.
type HashStructure struct {
	HashAlgorithmID uint16
	Size            uint16
	HashBuffer      [32]uint8
}

// Digest returns the digest bytes trimmed to the declared size.
func (h *HashStructure) Digest() []byte {
	if int(h.Size) > len(h.HashBuffer) {
		return h.HashBuffer[:]
	}
	return h.HashBuffer[:h.Size]
}

// AlgorithmString names the hash algorithm.
func (h *HashStructure) AlgorithmString() string {
	switch h.HashAlgorithmID {
	case AlgSHA1:
		return "SHA1"
	case AlgSHA256:
		return "SHA256"
	case AlgSM3:
		return "SM3"
	}
	return fmt.Sprintf("Unknown (%04Xh)", h.HashAlgorithmID)
}

// KeyManifest is a Boot Guard key manifest header. The key and
// signature structure that follows is not interpreted.
type KeyManifest struct {
	Tag       [8]uint8
	Version   uint8
	KmVersion uint8
	KmSvn     uint8
	KmID      uint8
	BpKeyHash HashStructure
}

// ParseKeyManifest reads and checks a key manifest.
func ParseKeyManifest(buf []byte) (*KeyManifest, error) {
	km := &KeyManifest{}
	if binary.Size(km) > len(buf) {
		return nil, fmt.Errorf("buffer of %d bytes is too small for a key manifest", len(buf))
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, km); err != nil {
		return nil, err
	}
	if !bytes.Equal(km.Tag[:], KeyManifestTag) {
		return nil, fmt.Errorf("key manifest tag is %q, should be %q", km.Tag, KeyManifestTag)
	}
	return km, nil
}

// BootPolicyHeader is the header of a boot policy manifest; tagged
// elements follow it back to back.
type BootPolicyHeader struct {
	Tag           [8]uint8
	Version       uint8
	HeaderVersion uint8
	PMBPMVersion  uint8
	BPSvn         uint8
	ACMSvn        uint8
	Reserved      uint8
	NEMDataStack  uint16
}

// IBBSegment is one protected flash range declared by an IBB element.
type IBBSegment struct {
	Reserved uint16
	Flags    uint16
	Base     uint32
	Size     uint32
}

// IBBElement is the initial boot block element of a boot policy.
type IBBElement struct {
	Tag                 [8]uint8
	Version             uint8
	Reserved0           [3]uint8
	Flags               uint32
	IbbMchBar           uint64
	VtdBar              uint64
	DmaProtectionBase0  uint32
	DmaProtectionLimit0 uint32
	DmaProtectionBase1  uint64
	DmaProtectionLimit1 uint64
	PostIbbHash         HashStructure
	IbbEntryPoint       uint32
	Digest              HashStructure
	SegmentCount        uint8
}

// PlatformManufacturerElement heads vendor-defined data; the parser
// only skips over it.
type PlatformManufacturerElement struct {
	Tag       [8]uint8
	Version   uint8
	Reserved0 [3]uint8
	DataSize  uint16
}

// SignatureElement terminates a boot policy manifest.
type SignatureElement struct {
	Tag       [8]uint8
	Version   uint8
	Reserved0 [3]uint8
}

// KeyStructure is the RSA public key following the signature element.
type KeyStructure struct {
	Version  uint8
	KeySize  uint16 // in bits
	Exponent uint32
	Modulus  [256]uint8
}

// BootPolicy is a parsed boot policy manifest.
type BootPolicy struct {
	Header BootPolicyHeader
	// IbbDigest is the digest the IBB segments must hash to.
	IbbDigest HashStructure
	// ProtectedRanges are the IBB segments as physical address ranges.
	ProtectedRanges ubytes.Ranges
	// HasSignatureElement records a terminating __PMSG__ element.
	HasSignatureElement bool
	// PubKey is the manifest's signing key when the signature element
	// carries one.
	PubKey *KeyStructure
}

// ParseBootPolicy walks a boot policy manifest and its chained
// elements, collecting the IBB digest and the protected ranges.
func ParseBootPolicy(buf []byte) (*BootPolicy, error) {
	bp := &BootPolicy{}
	r := bytes.NewReader(buf)
	if err := binary.Read(r, binary.LittleEndian, &bp.Header); err != nil {
		return nil, fmt.Errorf("buffer of %d bytes is too small for a boot policy manifest", len(buf))
	}
	if !bytes.Equal(bp.Header.Tag[:], BootPolicyTag) {
		return nil, fmt.Errorf("boot policy tag is %q, should be %q", bp.Header.Tag, BootPolicyTag)
	}

	offset := binary.Size(bp.Header)
	for offset+8 <= len(buf) {
		tag := buf[offset : offset+8]
		switch {
		case bytes.Equal(tag, IBBElementTag):
			var elem IBBElement
			if binary.Size(&elem) > len(buf)-offset {
				return nil, fmt.Errorf("IBB element at %#x overruns the manifest", offset)
			}
			if err := binary.Read(bytes.NewReader(buf[offset:]), binary.LittleEndian, &elem); err != nil {
				return nil, err
			}
			offset += binary.Size(&elem)
			bp.IbbDigest = elem.Digest
			segSize := binary.Size(IBBSegment{})
			for i := 0; i < int(elem.SegmentCount); i++ {
				var seg IBBSegment
				if segSize > len(buf)-offset {
					return nil, fmt.Errorf("IBB segment %d overruns the manifest", i)
				}
				if err := binary.Read(bytes.NewReader(buf[offset:]), binary.LittleEndian, &seg); err != nil {
					return nil, err
				}
				offset += segSize
				if seg.Size != 0 {
					bp.ProtectedRanges = append(bp.ProtectedRanges, ubytes.Range{
						Offset: uint64(seg.Base),
						Length: uint64(seg.Size),
					})
				}
			}

		case bytes.Equal(tag, PlatformManufacturerTag):
			var elem PlatformManufacturerElement
			if binary.Size(&elem) > len(buf)-offset {
				return nil, fmt.Errorf("platform manufacturer element at %#x overruns the manifest", offset)
			}
			if err := binary.Read(bytes.NewReader(buf[offset:]), binary.LittleEndian, &elem); err != nil {
				return nil, err
			}
			offset += binary.Size(&elem) + int(elem.DataSize)

		case bytes.Equal(tag, SignatureElementTag):
			bp.HasSignatureElement = true
			// The key and signature close the manifest.
			var elem SignatureElement
			offset += binary.Size(&elem)
			var key KeyStructure
			if binary.Size(&key) <= len(buf)-offset {
				if err := binary.Read(bytes.NewReader(buf[offset:]), binary.LittleEndian, &key); err == nil {
					bp.PubKey = &key
				}
			}
			return bp, nil

		default:
			return bp, fmt.Errorf("unknown boot policy element tag %q at %#x", tag, offset)
		}
	}

	return bp, nil
}
