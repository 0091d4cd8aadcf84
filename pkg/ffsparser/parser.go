// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ffsparser implements the multi-pass recursive descent parser
// over UEFI flash images. The first pass strips capsules, maps Intel
// descriptor regions and walks volumes, files and sections into a
// treemodel tree; later passes propagate memory addresses from the last
// Volume Top File, locate the FIT and validate protected ranges.
package ffsparser

import (
	stdbytes "bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

// Parser carries all state of one parse. It is not safe for concurrent
// use; create one per image.
type Parser struct {
	model    *treemodel.Model
	messages []Message
	image    []byte

	capsuleOffsetFixup uint64

	lastVtf      *treemodel.Node
	firstDxeCore *treemodel.Node

	addressDiff      uint64
	addressDiffValid bool

	fitRows []FITRow

	bgAcmFound      bool
	bgKeyManifest   *treemodel.Node
	bgBootPolicy    *treemodel.Node
	bgBpKeyHash     []byte
	bgBpKeyHashAlg  uint16
	bgBpPubKey      []byte
	protectedRanges []protectedRange
}

// New creates an empty parser.
func New() *Parser {
	return &Parser{model: treemodel.New()}
}

// Model returns the parse tree.
func (p *Parser) Model() *treemodel.Model {
	return p.model
}

// Parse runs all passes over buffer. The returned error is the first
// root-fatal condition; partial trees and the message log survive it.
func (p *Parser) Parse(buffer []byte) error {
	p.image = buffer

	firstPassErr := p.performFirstPass(buffer)
	p.addOffsetsRecursive(p.model.Root())
	if firstPassErr != nil {
		return firstPassErr
	}

	if p.lastVtf != nil {
		p.performSecondPass()
		p.parseFit()
		p.checkProtectedRanges()
	} else {
		p.msg(nil, "parse: not a single Volume Top File is found, the image may be corrupted")
	}

	return nil
}

// performFirstPass strips an optional capsule and dispatches between
// Intel-image and raw-area parsing.
func (p *Parser) performFirstPass(buffer []byte) error {
	p.capsuleOffsetFixup = 0

	if len(buffer) <= uefi.CapsuleHeaderSize {
		p.msg(nil, "performFirstPass: image file is smaller than minimum size of 1Ch (28) bytes")
		return ErrInvalidParameter
	}

	capsule, err := p.parseCapsule(buffer)
	if err != nil {
		return err
	}

	var capsuleHeaderSize uint64
	if capsule != nil {
		capsuleHeaderSize = uint64(len(capsule.Header()))
	}
	flashImage := bytes.Mid(buffer, int(capsuleHeaderSize), -1)

	if uefi.HasSignature(flashImage) {
		imageErr := p.parseIntelImage(flashImage, capsuleHeaderSize, capsule)
		if imageErr == nil || !errors.Is(imageErr, ErrInvalidFlashDescriptor) {
			return imageErr
		}
	}

	info := fmt.Sprintf("Full size: %Xh (%d)", len(flashImage), len(flashImage))
	biosNode, err := p.model.AddItem(capsuleHeaderSize, treemodel.TypeImage, treemodel.SubtypeUefiImage,
		"UEFI image", "", info, nil, flashImage, nil, true, capsule, treemodel.ModeAppend)
	if err != nil {
		return err
	}

	return p.parseRawArea(biosNode)
}

// parseCapsule recognizes the known capsule headers at the start of
// buffer. It returns nil when the image is bare.
func (p *Parser) parseCapsule(buffer []byte) (*treemodel.Node, error) {
	var (
		name    string
		subtype uint8
	)

	switch {
	case bytes.StartsWith(buffer, uefi.EFICapsuleGUID[:]),
		bytes.StartsWith(buffer, uefi.IntelCapsuleGUID[:]),
		bytes.StartsWith(buffer, uefi.LenovoCapsuleGUID[:]),
		bytes.StartsWith(buffer, uefi.Lenovo2CapsuleGUID[:]):
		name, subtype = "UEFI capsule", treemodel.SubtypeUefiCapsule
	case bytes.StartsWith(buffer, uefi.ToshibaCapsuleGUID[:]):
		name, subtype = "Toshiba capsule", treemodel.SubtypeToshibaCapsule
	case bytes.StartsWith(buffer, uefi.AptioSignedCapsuleGUID[:]):
		name, subtype = "AMI Aptio capsule", treemodel.SubtypeAptioSignedCapsule
	case bytes.StartsWith(buffer, uefi.AptioUnsignedCapsuleGUID[:]):
		name, subtype = "AMI Aptio capsule", treemodel.SubtypeAptioUnsignedCapsule
	default:
		return nil, nil
	}

	var header uefi.CapsuleHeader
	if err := binary.Read(stdbytes.NewReader(buffer), binary.LittleEndian, &header); err != nil {
		return nil, ErrInvalidCapsule
	}

	headerSize := uint64(header.HeaderSize)
	fullSize := uint64(header.CapsuleImageSize)
	flags := header.Flags
	if subtype == treemodel.SubtypeToshibaCapsule {
		// Toshiba swaps the last two header fields: the full size
		// comes before the flags.
		fullSize, flags = uint64(header.Flags), header.CapsuleImageSize
	}

	aptio := subtype == treemodel.SubtypeAptioSignedCapsule || subtype == treemodel.SubtypeAptioUnsignedCapsule
	if aptio {
		if len(buffer) <= uefi.AptioCapsuleHeaderSize {
			p.msg(nil, "performFirstPass: AMI capsule image file is smaller than minimum size of 20h (32) bytes")
			return nil, ErrInvalidParameter
		}
		var aptioHeader uefi.AptioCapsuleHeader
		if err := binary.Read(stdbytes.NewReader(buffer), binary.LittleEndian, &aptioHeader); err != nil {
			return nil, ErrInvalidCapsule
		}
		headerSize = uint64(aptioHeader.RomImageOffset)
		fullSize = uint64(aptioHeader.CapsuleHeader.CapsuleImageSize)
	}

	if headerSize == 0 || headerSize > uint64(len(buffer)) || headerSize > fullSize {
		p.msg(nil, fmt.Sprintf("performFirstPass: capsule header size of %Xh (%d) bytes is invalid", headerSize, headerSize))
		return nil, ErrInvalidCapsule
	}
	if fullSize == 0 || fullSize > uint64(len(buffer)) {
		p.msg(nil, fmt.Sprintf("performFirstPass: capsule image size of %Xh (%d) bytes is invalid", fullSize, fullSize))
		return nil, ErrInvalidCapsule
	}

	capsuleGUID := guid.FromBytes(buffer)
	info := fmt.Sprintf("Capsule GUID: %s\nFull size: %Xh (%d)\nHeader size: %Xh (%d)\nImage size: %Xh (%d)\nFlags: %08Xh",
		capsuleGUID,
		len(buffer), len(buffer),
		headerSize, headerSize,
		fullSize-headerSize, fullSize-headerSize,
		flags)

	// Volume alignment warnings must account for the stripped header.
	p.capsuleOffsetFixup = headerSize

	capsule, err := p.model.AddItem(0, treemodel.TypeCapsule, subtype, name, "", info,
		bytes.Left(buffer, int(headerSize)), bytes.Mid(buffer, int(headerSize), -1),
		nil, true, nil, treemodel.ModeAppend)
	if err != nil {
		return nil, err
	}

	if subtype == treemodel.SubtypeAptioSignedCapsule {
		p.msg(capsule, "performFirstPass: Aptio capsule signature may become invalid after image modifications")
	}
	return capsule, nil
}

// paddingSubtype classifies padding content.
func paddingSubtype(padding []byte) uint8 {
	if bytes.Count(padding, 0x00) == len(padding) {
		return treemodel.SubtypeZeroPadding
	}
	if bytes.Count(padding, 0xFF) == len(padding) {
		return treemodel.SubtypeOnePadding
	}
	return treemodel.SubtypeDataPadding
}

// addPadding emits one padding node classified by content.
func (p *Parser) addPadding(offset uint64, padding []byte, parent *treemodel.Node) (*treemodel.Node, error) {
	info := fmt.Sprintf("Full size: %Xh (%d)", len(padding), len(padding))
	return p.model.AddItem(offset, treemodel.TypePadding, paddingSubtype(padding),
		"Padding", "", info, nil, padding, nil, true, parent, treemodel.ModeAppend)
}

// parseRawArea scans the parent's body for firmware volumes, emitting
// padding between them, and then descends into each volume. A volume
// whose header fails to parse is logged and the scan goes on. A volume
// whose size cannot be determined ends the call with that error, before
// the trailing padding is emitted and before any volume body is parsed.
// Errors from volume bodies are not returned.
func (p *Parser) parseRawArea(parent *treemodel.Node) error {
	if parent == nil {
		return ErrInvalidParameter
	}
	data := parent.Body()
	offset := parent.Offset() + uint64(len(parent.Header()))

	prevVolumeOffset, err := p.findNextVolume(parent, data, offset, 0)
	if err != nil {
		return err
	}

	if prevVolumeOffset > 0 {
		if _, err := p.addPadding(offset, bytes.Left(data, int(prevVolumeOffset)), parent); err != nil {
			return err
		}
	}

	volumeOffset := prevVolumeOffset
	var prevVolumeSize uint64
	var searchErr error

	for searchErr == nil {
		if volumeOffset > prevVolumeOffset+prevVolumeSize {
			paddingOffset := prevVolumeOffset + prevVolumeSize
			padding := bytes.Mid(data, int(paddingOffset), int(volumeOffset-paddingOffset))
			if _, err := p.addPadding(offset+paddingOffset, padding, parent); err != nil {
				return err
			}
		}

		volumeSize, bmVolumeSize, err := p.getVolumeSize(data, volumeOffset)
		if err != nil {
			p.msg(parent, fmt.Sprintf("parseRawArea: getVolumeSize failed with error %q", err))
			return err
		}

		if volumeOffset+volumeSize > uint64(len(data)) {
			// Truncated volume, emit the rest as padding and stop.
			padding := bytes.Mid(data, int(volumeOffset), -1)
			paddingNode, err := p.addPadding(offset+volumeOffset, padding, parent)
			if err != nil {
				return err
			}
			p.msg(paddingNode, "parseRawArea: one of volumes inside overlaps the end of data")
			prevVolumeOffset = volumeOffset
			prevVolumeSize = uint64(len(padding))
			break
		}

		volume := bytes.Mid(data, int(volumeOffset), int(volumeSize))
		volumeNode, err := p.parseVolumeHeader(volume, offset+volumeOffset, parent)
		if err != nil {
			p.msg(parent, fmt.Sprintf("parseRawArea: volume header parsing failed with error %q", err))
		} else if volumeSize != bmVolumeSize {
			p.msg(volumeNode, fmt.Sprintf("parseRawArea: volume size stored in header %Xh (%d) differs from calculated using block map %Xh (%d)",
				volumeSize, volumeSize, bmVolumeSize, bmVolumeSize))
		}

		prevVolumeOffset = volumeOffset
		prevVolumeSize = volumeSize
		volumeOffset, searchErr = p.findNextVolume(parent, data, offset, volumeOffset+prevVolumeSize)
	}

	// Padding at the end of the area.
	trailingOffset := prevVolumeOffset + prevVolumeSize
	if uint64(len(data)) > trailingOffset {
		if _, err := p.addPadding(offset+trailingOffset, bytes.Mid(data, int(trailingOffset), -1), parent); err != nil {
			return err
		}
	}

	// Parse the volume bodies. Failures inside one volume were already
	// logged and must not fail its siblings.
	for _, child := range parent.Children() {
		switch child.Type() {
		case treemodel.TypeVolume:
			_ = p.parseVolumeBody(child)
		case treemodel.TypePadding:
			// No parsing required.
		default:
			return ErrUnknownItemType
		}
	}

	return nil
}

// findNextVolume locates the next sane _FVH signature at or after
// fromOffset and returns the volume's start.
func (p *Parser) findNextVolume(parent *treemodel.Node, data []byte, parentOffset, fromOffset uint64) (uint64, error) {
	nextIndex := bytes.IndexOf(data, uefi.VolumeSignature, int(fromOffset))
	if nextIndex < uefi.VolumeSignatureOffset {
		return 0, ErrVolumesNotFound
	}

	for ; nextIndex > 0; nextIndex = bytes.IndexOf(data, uefi.VolumeSignature, nextIndex+1) {
		candidate := bytes.Mid(data, nextIndex-uefi.VolumeSignatureOffset, -1)
		var header uefi.VolumeHeader
		if err := binary.Read(stdbytes.NewReader(candidate), binary.LittleEndian, &header); err != nil {
			continue
		}
		candidateOffset := parentOffset + uint64(nextIndex-uefi.VolumeSignatureOffset)
		if header.FvLength < uefi.VolumeHeaderMinSize+16 || header.FvLength >= 0xFFFFFFFF {
			p.msg(parent, fmt.Sprintf("findNextVolume: volume candidate at offset %Xh skipped, has invalid FvLength %Xh",
				candidateOffset, header.FvLength))
			continue
		}
		if header.Reserved != 0xFF && header.Reserved != 0x00 {
			p.msg(parent, fmt.Sprintf("findNextVolume: volume candidate at offset %Xh skipped, has invalid Reserved byte value %d",
				candidateOffset, header.Reserved))
			continue
		}
		if header.Revision != 1 && header.Revision != 2 {
			p.msg(parent, fmt.Sprintf("findNextVolume: volume candidate at offset %Xh skipped, has invalid Revision byte value %d",
				candidateOffset, header.Revision))
			continue
		}
		break
	}
	if nextIndex < uefi.VolumeSignatureOffset {
		return 0, ErrVolumesNotFound
	}

	return uint64(nextIndex - uefi.VolumeSignatureOffset), nil
}

// getVolumeSize returns the size stored in the volume header and the
// size computed from the block map.
func (p *Parser) getVolumeSize(data []byte, volumeOffset uint64) (volumeSize, bmVolumeSize uint64, err error) {
	if uint64(len(data)) < volumeOffset+uefi.VolumeHeaderMinSize+8 {
		return 0, 0, ErrInvalidVolume
	}

	volume := bytes.Mid(data, int(volumeOffset), -1)
	var header uefi.VolumeHeader
	if err := binary.Read(stdbytes.NewReader(volume), binary.LittleEndian, &header); err != nil {
		return 0, 0, ErrInvalidVolume
	}
	if header.Signature != binary.LittleEndian.Uint32(uefi.VolumeSignature) {
		return 0, 0, ErrInvalidVolume
	}

	var calcSize uint64
	blockOffset := uefi.VolumeFixedHeaderSize
	for {
		if blockOffset+8 > len(volume) {
			return 0, 0, ErrInvalidVolume
		}
		numBlocks := binary.LittleEndian.Uint32(volume[blockOffset:])
		length := binary.LittleEndian.Uint32(volume[blockOffset+4:])
		if numBlocks == 0 && length == 0 {
			break
		}
		calcSize += uint64(numBlocks) * uint64(length)
		blockOffset += 8
	}

	if header.FvLength == 0 {
		return 0, 0, ErrInvalidVolume
	}
	return header.FvLength, calcSize, nil
}
