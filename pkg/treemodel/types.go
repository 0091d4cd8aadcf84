// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package treemodel

// Type classifies a tree node.
type Type uint8

// Item types.
const (
	TypeRoot Type = 60 + iota
	TypeCapsule
	TypeImage
	TypeRegion
	TypePadding
	TypeVolume
	TypeFile
	TypeSection
	TypeFreeSpace
)

func (t Type) String() string {
	switch t {
	case TypeRoot:
		return "Root"
	case TypeCapsule:
		return "Capsule"
	case TypeImage:
		return "Image"
	case TypeRegion:
		return "Region"
	case TypePadding:
		return "Padding"
	case TypeVolume:
		return "Volume"
	case TypeFile:
		return "File"
	case TypeSection:
		return "Section"
	case TypeFreeSpace:
		return "Free space"
	}
	return "Unknown"
}

// Image subtypes.
const (
	SubtypeIntelImage uint8 = 70 + iota
	SubtypeUefiImage
)

// Capsule subtypes.
const (
	SubtypeAptioSignedCapsule uint8 = 80 + iota
	SubtypeAptioUnsignedCapsule
	SubtypeUefiCapsule
	SubtypeToshibaCapsule
)

// Volume subtypes.
const (
	SubtypeUnknownVolume uint8 = 90 + iota
	SubtypeFfs2Volume
	SubtypeFfs3Volume
	SubtypeNvramVolume
)

// Region subtypes. These match the descriptor's region numbering.
const (
	SubtypeDescriptorRegion uint8 = iota
	SubtypeBiosRegion
	SubtypeMeRegion
	SubtypeGbeRegion
	SubtypePdrRegion
	SubtypeReserved1Region
	SubtypeReserved2Region
	SubtypeReserved3Region
	SubtypeEcRegion
	SubtypeReserved4Region
)

// Padding subtypes.
const (
	SubtypeZeroPadding uint8 = 110 + iota
	SubtypeOnePadding
	SubtypeDataPadding
)

// SubtypeString returns the human-readable name of a subtype in the
// context of its item type. File and Section subtypes are raw FFS type
// bytes and are named by the parser's tables instead.
func SubtypeString(t Type, subtype uint8) string {
	switch t {
	case TypeImage:
		switch subtype {
		case SubtypeIntelImage:
			return "Intel"
		case SubtypeUefiImage:
			return "UEFI"
		}
	case TypeCapsule:
		switch subtype {
		case SubtypeAptioSignedCapsule:
			return "Aptio signed"
		case SubtypeAptioUnsignedCapsule:
			return "Aptio unsigned"
		case SubtypeUefiCapsule:
			return "UEFI 2.0"
		case SubtypeToshibaCapsule:
			return "Toshiba"
		}
	case TypeVolume:
		switch subtype {
		case SubtypeUnknownVolume:
			return "Unknown"
		case SubtypeFfs2Volume:
			return "FFSv2"
		case SubtypeFfs3Volume:
			return "FFSv3"
		case SubtypeNvramVolume:
			return "NVRAM"
		}
	case TypeRegion:
		switch subtype {
		case SubtypeDescriptorRegion:
			return "Descriptor"
		case SubtypeBiosRegion:
			return "BIOS"
		case SubtypeMeRegion:
			return "ME"
		case SubtypeGbeRegion:
			return "GbE"
		case SubtypePdrRegion:
			return "PDR"
		case SubtypeReserved1Region:
			return "Reserved1"
		case SubtypeReserved2Region:
			return "Reserved2"
		case SubtypeReserved3Region:
			return "Reserved3"
		case SubtypeEcRegion:
			return "EC"
		case SubtypeReserved4Region:
			return "Reserved4"
		}
	case TypePadding:
		switch subtype {
		case SubtypeZeroPadding:
			return "Empty (0x00)"
		case SubtypeOnePadding:
			return "Empty (0xFF)"
		case SubtypeDataPadding:
			return "Non-empty"
		}
	}
	return ""
}

// Action records a mutation intent set by an editor. The parser never
// sets actions.
type Action uint8

// Actions.
const (
	ActionNoAction Action = 50 + iota
	ActionErase
	ActionCreate
	ActionInsert
	ActionReplace
	ActionRemove
	ActionRebuild
	ActionRebase
)

func (a Action) String() string {
	switch a {
	case ActionNoAction:
		return "NoAction"
	case ActionErase:
		return "Erase"
	case ActionCreate:
		return "Create"
	case ActionInsert:
		return "Insert"
	case ActionReplace:
		return "Replace"
	case ActionRemove:
		return "Remove"
	case ActionRebuild:
		return "Rebuild"
	case ActionRebase:
		return "Rebase"
	}
	return "Unknown"
}

// Marking is the colour tag used by the protected-range validator.
type Marking uint8

// Markings.
const (
	MarkingNone Marking = iota
	// MarkingFullRange marks a node entirely inside a protected range.
	MarkingFullRange
	// MarkingPartialRange marks a node that only overlaps a protected
	// range.
	MarkingPartialRange
	// MarkingViolatesRange marks a node inside a range whose digest
	// does not match.
	MarkingViolatesRange
)

// InsertMode selects where AddItem places a new node.
type InsertMode uint8

// Insert modes.
const (
	ModeAppend InsertMode = iota
	ModePrepend
	ModeBefore
	ModeAfter
)
