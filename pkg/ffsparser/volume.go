// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	stdbytes "bytes"
	"encoding/binary"
	"fmt"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/integrity"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

// parseVolumeHeader validates the volume header, classifies the file
// system and emits the Volume node.
func (p *Parser) parseVolumeHeader(volume []byte, offset uint64, parent *treemodel.Node) (*treemodel.Node, error) {
	if len(volume) == 0 {
		return nil, ErrInvalidParameter
	}
	if len(volume) < uefi.VolumeHeaderMinSize {
		p.msg(nil, fmt.Sprintf("parseVolumeHeader: input volume size %Xh (%d) is smaller than volume header size 40h (64)",
			len(volume), len(volume)))
		return nil, ErrInvalidVolume
	}

	var volumeHeader uefi.VolumeHeader
	if err := binary.Read(stdbytes.NewReader(volume), binary.LittleEndian, &volumeHeader); err != nil {
		return nil, ErrInvalidVolume
	}

	if uefi.Align8(uint32(volumeHeader.HeaderLength)) > uint32(len(volume)) {
		p.msg(nil, "parseVolumeHeader: volume header overlaps the end of data")
		return nil, ErrInvalidVolume
	}
	if volumeHeader.Revision > 1 && volumeHeader.ExtHeaderOffset != 0 &&
		uefi.Align8(uint32(volumeHeader.ExtHeaderOffset)+uefi.VolumeExtHeaderSize) > uint32(len(volume)) {
		p.msg(nil, "parseVolumeHeader: extended volume header overlaps the end of data")
		return nil, ErrInvalidVolume
	}

	// Effective header size includes the extended header when present.
	var headerSize uint32
	var extendedHeaderGUID guid.GUID
	hasExtendedHeader := false
	if volumeHeader.Revision > 1 && volumeHeader.ExtHeaderOffset != 0 {
		hasExtendedHeader = true
		var extendedHeader uefi.VolumeExtHeader
		if err := binary.Read(stdbytes.NewReader(volume[volumeHeader.ExtHeaderOffset:]),
			binary.LittleEndian, &extendedHeader); err != nil {
			return nil, ErrInvalidVolume
		}
		headerSize = uint32(volumeHeader.ExtHeaderOffset) + extendedHeader.ExtHeaderSize
		extendedHeaderGUID = extendedHeader.FvName
	} else {
		headerSize = uint32(volumeHeader.HeaderLength)
	}
	// The extended header end can be unaligned.
	headerSize = uefi.Align8(headerSize)
	if headerSize > uint32(len(volume)) {
		p.msg(nil, "parseVolumeHeader: volume header overlaps the end of data")
		return nil, ErrInvalidVolume
	}

	// Classify the file system.
	isUnknown := true
	var ffsVersion uint8
	subtype := treemodel.SubtypeUnknownVolume
	switch {
	case uefi.FFSv2Volumes[volumeHeader.FileSystemGUID]:
		isUnknown, ffsVersion, subtype = false, 2, treemodel.SubtypeFfs2Volume
	case uefi.FFSv3Volumes[volumeHeader.FileSystemGUID]:
		isUnknown, ffsVersion, subtype = false, 3, treemodel.SubtypeFfs3Volume
	case uefi.NVRAMVolumes[volumeHeader.FileSystemGUID]:
		isUnknown, subtype = false, treemodel.SubtypeNvramVolume
	}

	// Check revision and alignment.
	var msgAlignmentBitsSet, msgUnaligned, msgUnknownRevision bool
	alignment := uint32(65536) // default volume alignment is 64K
	if volumeHeader.Revision == 1 {
		// Revision 1 alignment is not validated; real images set the
		// capability bits inconsistently.
		if volumeHeader.Attributes&uefi.FVBAlignmentCap == 0 &&
			volumeHeader.Attributes&0xFFFF0000 != 0 {
			msgAlignmentBitsSet = true
		}
	} else if volumeHeader.Revision == 2 {
		alignment = uint32(1) << ((volumeHeader.Attributes & uefi.FVB2Alignment) >> 16)
		if ffsVersion != 0 && (parent == nil || !parent.Compressed()) &&
			(offset-p.capsuleOffsetFixup)%uint64(alignment) != 0 {
			msgUnaligned = true
		}
	} else {
		msgUnknownRevision = true
	}

	// Erase polarity selects the empty byte.
	emptyByte := byte(0x00)
	if volumeHeader.Attributes&uefi.FVBErasePolarity != 0 {
		emptyByte = 0xFF
	}

	// Apple vendors hide a CRC32 of the body and a used-space counter
	// in the ZeroVector.
	hasAppleCrc32 := false
	hasAppleUsedSpace := false
	appleCrc32 := binary.LittleEndian.Uint32(volume[8:])
	appleUsedSpace := binary.LittleEndian.Uint32(volume[12:])
	if appleCrc32 != 0 {
		crc := integrity.CRC32(0, volume[volumeHeader.HeaderLength:])
		if crc == appleCrc32 {
			hasAppleCrc32 = true
			if appleUsedSpace != 0 {
				hasAppleUsedSpace = true
			}
		}
	}

	// Recalculate the header checksum.
	checksumStr := "valid"
	msgInvalidChecksum := false
	var calculated uint16
	if volumeHeader.HeaderLength >= uefi.VolumeFixedHeaderSize {
		tempHeader := make([]byte, volumeHeader.HeaderLength)
		copy(tempHeader, volume)
		// Zero the Checksum field at offset 50.
		tempHeader[50] = 0
		tempHeader[51] = 0
		var err error
		calculated, err = integrity.Checksum16(tempHeader)
		if err != nil || volumeHeader.Checksum != calculated {
			msgInvalidChecksum = true
		}
	} else {
		msgInvalidChecksum = true
	}
	if msgInvalidChecksum {
		checksumStr = fmt.Sprintf("invalid, should be %04Xh", calculated)
	}

	header := bytes.Left(volume, int(headerSize))
	body := bytes.Mid(volume, int(headerSize), -1)
	name := volumeHeader.FileSystemGUID.String()
	info := fmt.Sprintf("ZeroVector:\n%02X %02X %02X %02X %02X %02X %02X %02X\n%02X %02X %02X %02X %02X %02X %02X %02X",
		volumeHeader.ZeroVector[0], volumeHeader.ZeroVector[1], volumeHeader.ZeroVector[2], volumeHeader.ZeroVector[3],
		volumeHeader.ZeroVector[4], volumeHeader.ZeroVector[5], volumeHeader.ZeroVector[6], volumeHeader.ZeroVector[7],
		volumeHeader.ZeroVector[8], volumeHeader.ZeroVector[9], volumeHeader.ZeroVector[10], volumeHeader.ZeroVector[11],
		volumeHeader.ZeroVector[12], volumeHeader.ZeroVector[13], volumeHeader.ZeroVector[14], volumeHeader.ZeroVector[15])
	erasePolarity := "0"
	if emptyByte == 0xFF {
		erasePolarity = "1"
	}
	info += fmt.Sprintf("\nFileSystem GUID: %s\nFull size: %Xh (%d)\nHeader size: %Xh (%d)\nBody size: %Xh (%d)\nRevision: %d\nAttributes: %08Xh\nErase polarity: %s\nChecksum: %04Xh, %s",
		volumeHeader.FileSystemGUID.String(),
		len(volume), len(volume),
		headerSize, headerSize,
		len(body), len(body),
		volumeHeader.Revision,
		volumeHeader.Attributes,
		erasePolarity,
		volumeHeader.Checksum,
		checksumStr)

	if hasExtendedHeader {
		info += fmt.Sprintf("\nVolume GUID: %s", extendedHeaderGUID.String())
	}

	pdata := &treemodel.VolumeData{
		EmptyByte:          emptyByte,
		FFSVersion:         ffsVersion,
		HasExtendedHeader:  hasExtendedHeader,
		ExtendedHeaderGUID: extendedHeaderGUID,
		Alignment:          alignment,
		Revision:           volumeHeader.Revision,
		HasAppleCRC32:      hasAppleCrc32,
		HasAppleUsedSpace:  hasAppleUsedSpace,
		IsWeakAligned: volumeHeader.Revision > 1 &&
			volumeHeader.Attributes&uefi.FVB2WeakAlignment != 0,
	}

	var text string
	if hasAppleCrc32 {
		text += "AppleCRC32 "
	}
	if hasAppleUsedSpace {
		text += "UsedSpace "
	}

	node, err := p.model.AddItem(offset, treemodel.TypeVolume, subtype, name, text, info,
		header, body, pdata, true, parent, treemodel.ModeAppend)
	if err != nil {
		return nil, err
	}

	if isUnknown {
		p.msg(node, "parseVolumeHeader: unknown file system "+volumeHeader.FileSystemGUID.String())
	}
	if msgInvalidChecksum {
		p.msg(node, "parseVolumeHeader: volume header checksum is invalid")
	}
	if msgAlignmentBitsSet {
		p.msg(node, "parseVolumeHeader: alignment bits set on volume without alignment capability")
	}
	if msgUnaligned {
		p.msg(node, "parseVolumeHeader: unaligned volume")
	}
	if msgUnknownRevision {
		p.msg(node, "parseVolumeHeader: unknown volume revision")
	}

	return node, nil
}

// getFileSize reads the declared size of the file at fileOffset.
func getFileSize(volume []byte, fileOffset int, ffsVersion uint8) uint32 {
	switch ffsVersion {
	case 2:
		if len(volume) < fileOffset+uefi.FileHeaderSize {
			return 0
		}
		var header uefi.FileHeader
		if err := binary.Read(stdbytes.NewReader(volume[fileOffset:]), binary.LittleEndian, &header); err != nil {
			return 0
		}
		return uefi.Read3Size(header.Size)
	case 3:
		if len(volume) < fileOffset+uefi.FileHeaderSize {
			return 0
		}
		var header uefi.FileHeader
		if err := binary.Read(stdbytes.NewReader(volume[fileOffset:]), binary.LittleEndian, &header); err != nil {
			return 0
		}
		if header.IsLarge() {
			if len(volume) < fileOffset+uefi.FileHeaderExtSize {
				return 0
			}
			return uint32(binary.LittleEndian.Uint64(volume[fileOffset+uefi.FileHeaderSize:]))
		}
		return uefi.Read3Size(header.Size)
	}
	return 0
}

// parseVolumeBody walks the files of a known file system volume.
func (p *Parser) parseVolumeBody(volumeNode *treemodel.Node) error {
	if volumeNode == nil {
		return ErrInvalidParameter
	}

	pdata, ok := volumeNode.ParsingData().(*treemodel.VolumeData)
	if !ok || (pdata.FFSVersion != 2 && pdata.FFSVersion != 3) {
		// Unknown and NVRAM volumes are not descended into.
		return nil
	}

	volumeBody := volumeNode.Body()
	volumeHeaderSize := uint64(len(volumeNode.Header()))
	volumeBodySize := len(volumeBody)

	for fileOffset := 0; fileOffset < volumeBodySize; {
		fileSize := int(getFileSize(volumeBody, fileOffset, pdata.FFSVersion))

		if fileSize < uefi.FileHeaderSize || fileSize > volumeBodySize-fileOffset {
			// Either free space or non-UEFI data fills the rest; the file
			// walk ends here either way.
			header := bytes.Mid(volumeBody, fileOffset, uefi.FileHeaderSize)
			if bytes.Count(header, pdata.EmptyByte) != len(header) {
				if err := p.parseVolumeNonUefiData(bytes.Mid(volumeBody, fileOffset, -1),
					volumeNode.Offset()+volumeHeaderSize+uint64(fileOffset), volumeNode); err != nil {
					return err
				}
				break
			}

			freeSpace := bytes.Mid(volumeBody, fileOffset, -1)
			if bytes.Count(freeSpace, pdata.EmptyByte) == len(freeSpace) {
				info := fmt.Sprintf("Full size: %Xh (%d)", len(freeSpace), len(freeSpace))
				if _, err := p.model.AddItem(volumeNode.Offset()+volumeHeaderSize+uint64(fileOffset),
					treemodel.TypeFreeSpace, 0, "Volume free space", "", info,
					nil, freeSpace, nil, false, volumeNode, treemodel.ModeAppend); err != nil {
					return err
				}
				break
			}

			// Search for the first non-empty byte; at least 16 empty
			// bytes precede it, so aligning down by 8 stays inside.
			i := 0
			for ; i < len(freeSpace); i++ {
				if freeSpace[i] != pdata.EmptyByte {
					break
				}
			}
			if uint32(i) != uefi.Align8(uint32(i)) {
				i = int(uefi.Align8(uint32(i))) - 8
			}
			if i > 0 {
				free := bytes.Left(freeSpace, i)
				info := fmt.Sprintf("Full size: %Xh (%d)", len(free), len(free))
				if _, err := p.model.AddItem(volumeNode.Offset()+volumeHeaderSize+uint64(fileOffset),
					treemodel.TypeFreeSpace, 0, "Volume free space", "", info,
					nil, free, nil, false, volumeNode, treemodel.ModeAppend); err != nil {
					return err
				}
			}
			if err := p.parseVolumeNonUefiData(bytes.Mid(freeSpace, i, -1),
				volumeNode.Offset()+volumeHeaderSize+uint64(fileOffset+i), volumeNode); err != nil {
				return err
			}
			break
		}

		file := bytes.Mid(volumeBody, fileOffset, fileSize)
		if _, err := p.parseFileHeader(file, volumeNode.Offset()+volumeHeaderSize+uint64(fileOffset), volumeNode); err != nil {
			p.msg(volumeNode, fmt.Sprintf("parseVolumeBody: file header parsing failed with error %q", err))
		}

		fileOffset += fileSize
		fileOffset = int(uefi.Align8(uint32(fileOffset)))
	}

	p.checkDuplicateFileGUIDs(volumeNode)
	return p.parseFileBodies(volumeNode)
}

// checkDuplicateFileGUIDs warns about files sharing a GUID within one
// volume; pad files are exempt.
func (p *Parser) checkDuplicateFileGUIDs(volumeNode *treemodel.Node) {
	children := volumeNode.Children()
	for i, current := range children {
		if current.Type() != treemodel.TypeFile || uefi.FVFileType(current.Subtype()) == uefi.FVFileTypePad {
			continue
		}
		currentData, ok := current.ParsingData().(*treemodel.FileData)
		if !ok {
			continue
		}
		for _, another := range children[i+1:] {
			if another.Type() != treemodel.TypeFile {
				continue
			}
			anotherData, ok := another.ParsingData().(*treemodel.FileData)
			if !ok {
				continue
			}
			if currentData.GUID == anotherData.GUID {
				p.msg(another, "parseVolumeBody: file with duplicate GUID "+anotherData.GUID.String())
			}
		}
	}
}

// parseFileBodies descends into the file children of a volume.
func (p *Parser) parseFileBodies(volumeNode *treemodel.Node) error {
	for _, child := range volumeNode.Children() {
		switch child.Type() {
		case treemodel.TypeFile:
			_ = p.parseFileBody(child)
		case treemodel.TypePadding, treemodel.TypeFreeSpace:
			// No parsing required.
		default:
			return ErrUnknownItemType
		}
	}
	return nil
}

// parseVolumeNonUefiData handles data in a volume's free space. A VTF
// candidate at the tail is recovered as a file.
func (p *Parser) parseVolumeNonUefiData(data []byte, offset uint64, volumeNode *treemodel.Node) error {
	if volumeNode == nil {
		return ErrInvalidParameter
	}
	pdata, _ := volumeNode.ParsingData().(*treemodel.VolumeData)

	padding := data
	var vtf []byte
	vtfIndex := bytes.LastIndexOf(data, uefi.VTFGUID[:])
	if vtfIndex >= 0 {
		padding = bytes.Left(data, vtfIndex)
		vtf = bytes.Mid(data, vtfIndex, -1)
		tooSmall := len(vtf) < uefi.FileHeaderSize
		if !tooSmall && pdata != nil && pdata.FFSVersion == 3 && len(vtf) >= uefi.FileHeaderSize {
			var header uefi.FileHeader
			if err := binary.Read(stdbytes.NewReader(vtf), binary.LittleEndian, &header); err == nil &&
				header.IsLarge() && len(vtf) < uefi.FileHeaderExtSize {
				tooSmall = true
			}
		}
		if tooSmall {
			vtfIndex = -1
			padding = data
			vtf = nil
		}
	}

	info := fmt.Sprintf("Full size: %Xh (%d)", len(padding), len(padding))
	paddingNode, err := p.model.AddItem(offset, treemodel.TypePadding, treemodel.SubtypeDataPadding,
		"Non-UEFI data", "", info, nil, padding, nil, true, volumeNode, treemodel.ModeAppend)
	if err != nil {
		return err
	}
	p.msg(paddingNode, "parseVolumeNonUefiData: non-UEFI data found in volume's free space")

	if vtfIndex >= 0 {
		_, err := p.parseFileHeader(vtf, offset+uint64(vtfIndex), volumeNode)
		if err != nil {
			p.msg(volumeNode, fmt.Sprintf("parseVolumeNonUefiData: VTF file header parsing failed with error %q", err))

			info = fmt.Sprintf("Full size: %Xh (%d)", len(vtf), len(vtf))
			tail, err := p.model.AddItem(offset+uint64(vtfIndex), treemodel.TypePadding, treemodel.SubtypeDataPadding,
				"Non-UEFI data", "", info, nil, vtf, nil, true, volumeNode, treemodel.ModeAppend)
			if err != nil {
				return err
			}
			p.msg(tail, "parseVolumeNonUefiData: non-UEFI data found in volume's free space")
		}
	}

	return nil
}
