// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uefi

import (
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
)

// Firmware volume constants.
const (
	// VolumeFixedHeaderSize is the size of EFI_FIRMWARE_VOLUME_HEADER
	// up to and including Revision.
	VolumeFixedHeaderSize = 56
	// VolumeHeaderMinSize includes the terminating block map entry.
	VolumeHeaderMinSize = VolumeFixedHeaderSize + 8
	// VolumeExtHeaderSize is the size of EFI_FIRMWARE_VOLUME_EXT_HEADER.
	VolumeExtHeaderSize = 20
	// VolumeSignatureOffset is the fixed offset of "_FVH" within a
	// volume.
	VolumeSignatureOffset = 40
)

// VolumeSignature is the "_FVH" marker.
var VolumeSignature = []byte("_FVH")

// Volume attribute bits.
const (
	FVBErasePolarity  uint32 = 0x00000800
	FVBAlignmentCap   uint32 = 0x00008000
	FVB2Alignment     uint32 = 0x001F0000
	FVB2WeakAlignment uint32 = 0x80000000
)

// VolumeHeader is an EFI_FIRMWARE_VOLUME_HEADER without the trailing
// block map.
type VolumeHeader struct {
	ZeroVector      [16]uint8
	FileSystemGUID  guid.GUID
	FvLength        uint64
	Signature       uint32
	Attributes      uint32
	HeaderLength    uint16
	Checksum        uint16
	ExtHeaderOffset uint16
	Reserved        uint8
	Revision        uint8
}

// VolumeExtHeader is an EFI_FIRMWARE_VOLUME_EXT_HEADER.
type VolumeExtHeader struct {
	FvName        guid.GUID
	ExtHeaderSize uint32
}

// BlockMapEntry describes a run of equally sized volume blocks; a
// zeroed entry terminates the list.
type BlockMapEntry struct {
	NumBlocks uint32
	Length    uint32
}

// Known file system GUIDs, FFSv2 flavors.
var (
	FFS1GUID       = guid.MustParse("7A9354D9-0468-444A-81CE-0BF617D890DF")
	FFS2GUID       = guid.MustParse("8C8CE578-8A3D-4F1C-9935-896185C32DD3")
	AppleBootGUID  = guid.MustParse("04ADEEAD-61FF-4D31-B6BA-64F8BF901F5A")
	AppleBoot2GUID = guid.MustParse("BD001B8C-6A71-487B-A14F-0C2A2DCF7A5D")
	IntelFFSGUID   = guid.MustParse("AD3FFFFF-D28B-44C4-9F13-9EA98A97F9F0")
	IntelFFS2GUID  = guid.MustParse("D6A1CD70-4B33-4994-A6EA-375F2CCC5437")
	SonyFFSGUID    = guid.MustParse("4F494156-AED6-4D64-A537-B8A5557BCEEC")
)

// FFS3GUID is the only FFSv3 file system GUID.
var FFS3GUID = guid.MustParse("5473C07A-3DCB-4DCA-BD6F-1E9689E7349A")

// NVRAM volume GUIDs. These volumes are typed but not descended into.
var (
	NvramMainGUID       = guid.MustParse("FFF12B8D-7696-4C8B-A985-2747075B4F50")
	NvramAdditionalGUID = guid.MustParse("00504624-8A59-4EEB-BD0F-6B36E96128E0")
)

// FFSv2Volumes is the set of file system GUIDs parsed with FFSv2
// semantics.
var FFSv2Volumes = map[guid.GUID]bool{
	*FFS1GUID:       true,
	*FFS2GUID:       true,
	*AppleBootGUID:  true,
	*AppleBoot2GUID: true,
	*IntelFFSGUID:   true,
	*IntelFFS2GUID:  true,
	*SonyFFSGUID:    true,
}

// FFSv3Volumes is the set of file system GUIDs parsed with FFSv3
// semantics.
var FFSv3Volumes = map[guid.GUID]bool{
	*FFS3GUID: true,
}

// NVRAMVolumes is the set of NVRAM store GUIDs.
var NVRAMVolumes = map[guid.GUID]bool{
	*NvramMainGUID:       true,
	*NvramAdditionalGUID: true,
}

// Special file GUIDs.
var (
	// VTFGUID marks a Volume Top File, whose last byte maps to the
	// physical address 0xFFFFFFFF.
	VTFGUID = guid.MustParse("1BA0062E-C779-4582-8566-336AE8F78F09")
	// DXECoreGUID marks the DXE core; the first occurrence roots the
	// AMI legacy protected range.
	DXECoreGUID = guid.MustParse("D6A2CB7F-6A18-4E2F-B43B-9920A733700A")
	// PEIAprioriFileGUID and DXEAprioriFileGUID carry dispatch orders
	// as raw GUID lists.
	PEIAprioriFileGUID = guid.MustParse("1B45CC0A-156A-428A-AF62-49864DA0E6E6")
	DXEAprioriFileGUID = guid.MustParse("FC510EE7-FFDC-11D4-BD41-0080C73C8881")
	// NVARStoreGUID files hold NVAR variable stores.
	NVARStoreGUID = guid.MustParse("CEF5B9A3-476D-497F-9FDC-E98143E0422C")
)

// Vendor hash file GUIDs.
var (
	// PhoenixHashFileGUID files carry a "$HASHTBL" keyed table.
	PhoenixHashFileGUID = guid.MustParse("389CC6F2-1EA8-467B-AB8A-78E769AE2A15")
	// AMIHashFileGUID files carry either the legacy single-range or
	// the newer multi-range layout, told apart by body size.
	AMIHashFileGUID = guid.MustParse("CBC91F44-A4BC-4A5B-8696-703451D0B053")
)

// FVFileType is the type byte of an FFS file.
type FVFileType uint8

// FFS file types.
const (
	FVFileTypeAll FVFileType = iota
	FVFileTypeRaw
	FVFileTypeFreeForm
	FVFileTypeSECCore
	FVFileTypePEICore
	FVFileTypeDXECore
	FVFileTypePEIM
	FVFileTypeDriver
	FVFileTypeCombinedPEIMDriver
	FVFileTypeApplication
	FVFileTypeMM
	FVFileTypeVolumeImage
	FVFileTypeCombinedMMDXE
	FVFileTypeMMCore
	FVFileTypeMMStandalone
	FVFileTypeMMCoreStandalone
	FVFileTypeOEMMin   FVFileType = 0xC0
	FVFileTypeOEMMax   FVFileType = 0xDF
	FVFileTypeDebugMin FVFileType = 0xE0
	FVFileTypeDebugMax FVFileType = 0xEF
	FVFileTypePad      FVFileType = 0xF0
	FVFileTypeFFSMax   FVFileType = 0xFF
)

var fvFileTypeNames = map[FVFileType]string{
	FVFileTypeAll:                "All",
	FVFileTypeRaw:                "Raw",
	FVFileTypeFreeForm:           "Freeform",
	FVFileTypeSECCore:            "SEC core",
	FVFileTypePEICore:            "PEI core",
	FVFileTypeDXECore:            "DXE core",
	FVFileTypePEIM:               "PEI module",
	FVFileTypeDriver:             "DXE driver",
	FVFileTypeCombinedPEIMDriver: "Combined PEI module/DXE driver",
	FVFileTypeApplication:        "Application",
	FVFileTypeMM:                 "SMM module",
	FVFileTypeVolumeImage:        "Volume image",
	FVFileTypeCombinedMMDXE:      "Combined SMM module/DXE driver",
	FVFileTypeMMCore:             "SMM core",
	FVFileTypeMMStandalone:       "MM standalone module",
	FVFileTypeMMCoreStandalone:   "MM standalone core",
	FVFileTypePad:                "Pad",
}

func (t FVFileType) String() string {
	if s, ok := fvFileTypeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// FFS file attributes.
const (
	FFSAttribLargeFile     uint8 = 0x01
	FFSAttribTailPresent   uint8 = 0x01 // revision 1 volumes only
	FFSAttribFixed         uint8 = 0x04
	FFSAttribDataAlignment uint8 = 0x38
	FFSAttribChecksum      uint8 = 0x40
)

// FFSFixedChecksum is the data checksum of files without the CHECKSUM
// attribute.
const FFSFixedChecksum uint8 = 0xAA

// FFSAlignmentTable maps the 3-bit DATA_ALIGNMENT field to a power of
// two.
var FFSAlignmentTable = [8]uint8{0, 4, 7, 9, 10, 12, 15, 16}

// FFS file header sizes.
const (
	FileHeaderSize    = 24
	FileHeaderExtSize = 32
)

// IntegrityCheck holds the header and data checksums of a file.
type IntegrityCheck struct {
	Header uint8
	File   uint8
}

// TailReference returns the checksum pair as the 16 bit value whose
// complement terminates revision 1 files with a tail.
func (ic IntegrityCheck) TailReference() uint16 {
	return uint16(ic.Header) | uint16(ic.File)<<8
}

// FileHeader is an EFI_FFS_FILE_HEADER.
type FileHeader struct {
	Name           guid.GUID
	IntegrityCheck IntegrityCheck
	Type           FVFileType
	Attributes     uint8
	Size           [3]uint8
	State          uint8
}

// FileHeaderExt is an EFI_FFS_FILE_HEADER2, used when the LARGE_FILE
// attribute is set in an FFSv3 volume.
type FileHeaderExt struct {
	FileHeader
	ExtendedSize uint64
}

// IsLarge reports whether the large-file attribute is set.
func (h *FileHeader) IsLarge() bool {
	return h.Attributes&FFSAttribLargeFile != 0
}

// HasChecksum reports whether the body carries a real checksum.
func (h *FileHeader) HasChecksum() bool {
	return h.Attributes&FFSAttribChecksum != 0
}

// IsFixed reports whether the file must not move during a rebuild.
func (h *FileHeader) IsFixed() bool {
	return h.Attributes&FFSAttribFixed != 0
}

// AlignmentPower returns the file's required alignment as a power of
// two exponent.
func (h *FileHeader) AlignmentPower() uint8 {
	return FFSAlignmentTable[(h.Attributes&FFSAttribDataAlignment)>>3]
}

// SectionType is the type byte of a section.
type SectionType uint8

// Section types.
const (
	SectionTypeAll                 SectionType = 0x00
	SectionTypeCompression         SectionType = 0x01
	SectionTypeGUIDDefined         SectionType = 0x02
	SectionTypeDisposable          SectionType = 0x03
	SectionTypePE32                SectionType = 0x10
	SectionTypePIC                 SectionType = 0x11
	SectionTypeTE                  SectionType = 0x12
	SectionTypeDXEDepEx            SectionType = 0x13
	SectionTypeVersion             SectionType = 0x14
	SectionTypeUserInterface       SectionType = 0x15
	SectionTypeCompatibility16     SectionType = 0x16
	SectionTypeFirmwareVolumeImage SectionType = 0x17
	SectionTypeFreeformSubtypeGUID SectionType = 0x18
	SectionTypeRaw                 SectionType = 0x19
	SectionTypePEIDepEx            SectionType = 0x1B
	SectionTypeMMDepEx             SectionType = 0x1C
	SectionTypeInsydePostcode      SectionType = 0x20
	SectionTypePhoenixPostcode     SectionType = 0xF0
)

var sectionTypeNames = map[SectionType]string{
	SectionTypeAll:                 "All",
	SectionTypeCompression:         "Compression",
	SectionTypeGUIDDefined:         "GUID defined",
	SectionTypeDisposable:          "Disposable",
	SectionTypePE32:                "PE32 image",
	SectionTypePIC:                 "PIC image",
	SectionTypeTE:                  "TE image",
	SectionTypeDXEDepEx:            "DXE dependency",
	SectionTypeVersion:             "Version",
	SectionTypeUserInterface:       "UI",
	SectionTypeCompatibility16:     "Compatibility16",
	SectionTypeFirmwareVolumeImage: "Volume image",
	SectionTypeFreeformSubtypeGUID: "Freeform subtype GUID",
	SectionTypeRaw:                 "Raw",
	SectionTypePEIDepEx:            "PEI dependency",
	SectionTypeMMDepEx:             "SMM dependency",
	SectionTypeInsydePostcode:      "Insyde postcode",
	SectionTypePhoenixPostcode:     "Phoenix postcode",
}

func (t SectionType) String() string {
	if s, ok := sectionTypeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// Section header sizes and sentinels.
const (
	SectionHeaderSize    = 4
	SectionHeaderExtSize = 8
	// Section2IsUsed in the 24 bit size escalates to the extended
	// 32 bit size in FFSv3 volumes.
	Section2IsUsed = 0xFFFFFF
	// AppleSectionReserved detects the 8 byte Apple section header.
	AppleSectionReserved uint32 = 0x7FFF7FFF
)

// SectionHeader is an EFI_COMMON_SECTION_HEADER.
type SectionHeader struct {
	Size [3]uint8
	Type SectionType
}

// SectionExtHeader is an EFI_COMMON_SECTION_HEADER2.
type SectionExtHeader struct {
	SectionHeader
	ExtendedSize uint32
}

// SectionGUIDDefinedHeader holds the extra fields of a GUID-defined
// section.
type SectionGUIDDefinedHeader struct {
	SectionDefinitionGUID guid.GUID
	DataOffset            uint16
	Attributes            uint16
}

// GUIDed section attributes.
const (
	GUIDedSectionProcessingRequired uint16 = 0x01
	GUIDedSectionAuthStatusValid    uint16 = 0x02
)

// Known GUIDs of GUID-defined sections.
var (
	GUIDedSectionCRC32        = guid.MustParse("FC1BCDB0-7D31-49AA-936A-A4600D9DD083")
	GUIDedSectionLZMA         = guid.MustParse("EE4E5898-3914-4259-9D6E-DC7BD79403CF")
	GUIDedSectionLZMAF86      = guid.MustParse("D42AE6BD-1352-4BFB-909A-CA72A6EAE889")
	GUIDedSectionTiano        = guid.MustParse("A31280AD-481E-41B6-95E8-127F4C984779")
	FirmwareContentsSignedGUID = guid.MustParse("0F9D89E8-9259-4F76-A5AF-0C89E34023DF")
	CertTypeRSA2048SHA256GUID  = guid.MustParse("A7717414-C616-4977-9420-844712A735BF")
)

// WinCertificate is the certificate header of signed sections.
type WinCertificate struct {
	Length          uint32
	Revision        uint16
	CertificateType uint16
}

// WinCertificateUEFIGUID follows WinCertificate when the certificate
// type is WinCertTypeEFIGUID.
type WinCertificateUEFIGUID struct {
	WinCertificate
	CertType guid.GUID
}

// Certificate types.
const (
	WinCertTypeEFIGUID uint16 = 0x0EF1
)

// Dependency expression opcodes.
const (
	DepExOpBefore uint8 = 0x00
	DepExOpAfter  uint8 = 0x01
	DepExOpPush   uint8 = 0x02
	DepExOpAnd    uint8 = 0x03
	DepExOpOr     uint8 = 0x04
	DepExOpNot    uint8 = 0x05
	DepExOpTrue   uint8 = 0x06
	DepExOpFalse  uint8 = 0x07
	DepExOpEnd    uint8 = 0x08
	DepExOpSOR    uint8 = 0x09
)

// DepExOpcodeSize is the encoded size of one opcode.
const DepExOpcodeSize = 1
