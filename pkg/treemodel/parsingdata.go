// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package treemodel

import (
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
)

// ParsingData is the per-subtype record the parser attaches to a node.
// The concrete type is determined by the node subtype.
type ParsingData interface {
	isParsingData()
}

// VolumeData is the parsing data of a firmware volume node.
type VolumeData struct {
	EmptyByte          byte
	FFSVersion         uint8
	HasExtendedHeader  bool
	ExtendedHeaderGUID guid.GUID
	Alignment          uint32
	Revision           uint8
	HasAppleCRC32      bool
	HasAppleUsedSpace  bool
	IsWeakAligned      bool
}

func (*VolumeData) isParsingData() {}

// FileData is the parsing data of an FFS file node.
type FileData struct {
	EmptyByte byte
	GUID      guid.GUID
	HasTail   bool
	Tail      uint16
}

func (*FileData) isParsingData() {}

// CompressedSectionData is the parsing data of a compression section.
type CompressedSectionData struct {
	CompressionType  uint8
	UncompressedSize uint32
	// Algorithm is the numeric value of the resolved
	// compression.Algorithm, recorded after body expansion.
	Algorithm uint8
}

func (*CompressedSectionData) isParsingData() {}

// GuidedSectionData is the parsing data of a GUID-defined section.
type GuidedSectionData struct {
	GUID       guid.GUID
	DataOffset uint16
	Attributes uint16
}

func (*GuidedSectionData) isParsingData() {}

// FreeformGuidSectionData is the parsing data of a
// freeform-subtype-GUID section.
type FreeformGuidSectionData struct {
	GUID guid.GUID
}

func (*FreeformGuidSectionData) isParsingData() {}

// TeBaseType classifies how a TE image's base relates to its mapped
// memory address.
type TeBaseType uint8

// TE base types.
const (
	TeBaseOther TeBaseType = iota
	TeBaseOriginal
	TeBaseAdjusted
)

func (t TeBaseType) String() string {
	switch t {
	case TeBaseOriginal:
		return "Original"
	case TeBaseAdjusted:
		return "Adjusted"
	}
	return "Other"
}

// TeSectionData is the parsing data of a TE image section.
type TeSectionData struct {
	ImageBase         uint64
	AdjustedImageBase uint64
	BaseType          TeBaseType
}

func (*TeSectionData) isParsingData() {}
