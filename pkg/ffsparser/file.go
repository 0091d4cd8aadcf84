// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	stdbytes "bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/integrity"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

// parseFileHeader validates one FFS file header and emits the File
// node.
func (p *Parser) parseFileHeader(file []byte, offset uint64, parent *treemodel.Node) (*treemodel.Node, error) {
	if len(file) == 0 {
		return nil, ErrInvalidParameter
	}
	if len(file) < uefi.FileHeaderSize {
		return nil, ErrInvalidFile
	}

	volumeData, _ := p.volumeDataFor(parent)

	var fileHeader uefi.FileHeader
	if err := binary.Read(stdbytes.NewReader(file), binary.LittleEndian, &fileHeader); err != nil {
		return nil, ErrInvalidFile
	}

	headerSize := uefi.FileHeaderSize
	if volumeData != nil && volumeData.FFSVersion == 3 && fileHeader.IsLarge() {
		if len(file) < uefi.FileHeaderExtSize {
			return nil, ErrInvalidFile
		}
		headerSize = uefi.FileHeaderExtSize
	}

	// Check the file's own alignment requirement and compare it
	// against the parent volume's.
	msgUnalignedFile := false
	alignment := uint32(1) << fileHeader.AlignmentPower()
	if (offset+uint64(headerSize))%uint64(alignment) != 0 {
		msgUnalignedFile = true
	}
	msgFileAlignmentIsGreaterThanVolumes := false
	if volumeData != nil && !volumeData.IsWeakAligned && volumeData.Alignment < alignment {
		msgFileAlignmentIsGreaterThanVolumes = true
	}

	// Header checksum is computed with both integrity bytes and the
	// State byte excluded.
	tempHeader := make([]byte, headerSize)
	copy(tempHeader, file)
	tempHeader[16] = 0 // IntegrityCheck.Header
	tempHeader[17] = 0 // IntegrityCheck.File
	tempHeader[23] = 0 // State
	calculatedHeader := integrity.Checksum8(tempHeader)
	headerChecksumStr := "valid"
	msgInvalidHeaderChecksum := false
	if fileHeader.IntegrityCheck.Header != calculatedHeader {
		msgInvalidHeaderChecksum = true
		headerChecksumStr = fmt.Sprintf("invalid, should be %02X", calculatedHeader)
	}

	revision := uint8(2)
	if volumeData != nil {
		revision = volumeData.Revision
	}

	// Data checksum: real when the attribute is set, a fixed constant
	// otherwise.
	dataChecksumStr := "valid"
	msgInvalidDataChecksum := false
	if fileHeader.HasChecksum() {
		bufferSize := len(file) - headerSize
		if revision == 1 && fileHeader.Attributes&uefi.FFSAttribTailPresent != 0 {
			bufferSize -= 2
		}
		if bufferSize < 0 {
			bufferSize = 0
		}
		calculatedData := integrity.Checksum8(bytes.Mid(file, headerSize, bufferSize))
		if fileHeader.IntegrityCheck.File != calculatedData {
			msgInvalidDataChecksum = true
			dataChecksumStr = fmt.Sprintf("invalid, should be %02X", calculatedData)
		}
	} else if fileHeader.IntegrityCheck.File != uefi.FFSFixedChecksum {
		msgInvalidDataChecksum = true
		dataChecksumStr = fmt.Sprintf("invalid, should be %02X", uefi.FFSFixedChecksum)
	}

	msgUnknownType := fileHeader.Type > uefi.FVFileTypeMMCoreStandalone &&
		fileHeader.Type != uefi.FVFileTypePad

	header := bytes.Left(file, headerSize)
	body := bytes.Mid(file, headerSize, -1)

	// Revision 1 files may carry a two byte tail that must complement
	// the integrity pair.
	var tail []byte
	hasTail := false
	msgInvalidTailValue := false
	if revision == 1 && fileHeader.Attributes&uefi.FFSAttribTailPresent != 0 && len(body) >= 2 {
		hasTail = true
		tail = bytes.Right(body, 2)
		tailValue := binary.LittleEndian.Uint16(tail)
		if fileHeader.IntegrityCheck.TailReference() != ^tailValue {
			msgInvalidTailValue = true
		}
		body = bytes.Left(body, len(body)-2)
	}

	name := fileHeader.Name.String()
	if fileHeader.Type == uefi.FVFileTypePad {
		name = "Pad-file"
	}

	info := fmt.Sprintf("File GUID: %s\nType: %02Xh\nAttributes: %02Xh\nFull size: %Xh (%d)\nHeader size: %Xh (%d)\nBody size: %Xh (%d)",
		fileHeader.Name.String(),
		uint8(fileHeader.Type),
		fileHeader.Attributes,
		len(file), len(file),
		headerSize, headerSize,
		len(body), len(body))
	info += fmt.Sprintf("\nState: %02Xh\nHeader checksum: %02Xh, %s\nData checksum: %02Xh, %s",
		fileHeader.State,
		fileHeader.IntegrityCheck.Header, headerChecksumStr,
		fileHeader.IntegrityCheck.File, dataChecksumStr)

	var text string
	isVtf := fileHeader.Name == *uefi.VTFGUID
	if isVtf {
		text = "Volume Top File"
	}

	emptyByte := byte(0xFF)
	if volumeData != nil {
		emptyByte = volumeData.EmptyByte
	}
	var tailValue uint16
	if hasTail {
		tailValue = binary.LittleEndian.Uint16(tail)
	}
	pdata := &treemodel.FileData{
		EmptyByte: emptyByte,
		GUID:      fileHeader.Name,
		HasTail:   hasTail,
		Tail:      tailValue,
	}

	node, err := p.model.AddItem(offset, treemodel.TypeFile, uint8(fileHeader.Type), name, text, info,
		header, body, pdata, fileHeader.IsFixed(), parent, treemodel.ModeAppend)
	if err != nil {
		return nil, err
	}
	if hasTail {
		p.model.SetTail(node, tail)
	}

	// The last byte of the last VTF maps to physical 0xFFFFFFFF; the
	// latest occurrence wins.
	if isVtf {
		p.lastVtf = node
	}
	// The first DXE core roots the AMI legacy protected range.
	if fileHeader.Name == *uefi.DXECoreGUID && p.firstDxeCore == nil {
		p.firstDxeCore = node
	}

	if msgUnalignedFile {
		p.msg(node, "parseFileHeader: unaligned file")
	}
	if msgFileAlignmentIsGreaterThanVolumes {
		p.msg(node, fmt.Sprintf("parseFileHeader: file alignment %Xh is greater than parent volume alignment %Xh",
			alignment, volumeData.Alignment))
	}
	if msgInvalidHeaderChecksum {
		p.msg(node, "parseFileHeader: invalid header checksum")
	}
	if msgInvalidDataChecksum {
		p.msg(node, "parseFileHeader: invalid data checksum")
	}
	if msgInvalidTailValue {
		p.msg(node, "parseFileHeader: invalid tail value")
	}
	if msgUnknownType {
		p.msg(node, fmt.Sprintf("parseFileHeader: unknown file type %02Xh", uint8(fileHeader.Type)))
	}

	return node, nil
}

// volumeDataFor returns the volume parsing data governing a node.
func (p *Parser) volumeDataFor(node *treemodel.Node) (*treemodel.VolumeData, bool) {
	for n := node; n != nil; n = n.Parent() {
		if data, ok := n.ParsingData().(*treemodel.VolumeData); ok {
			return data, true
		}
	}
	return nil, false
}

// parseFileBody dispatches on the file type.
func (p *Parser) parseFileBody(fileNode *treemodel.Node) error {
	if fileNode == nil {
		return ErrInvalidParameter
	}
	if fileNode.Type() != treemodel.TypeFile {
		return nil
	}

	if data, ok := fileNode.ParsingData().(*treemodel.FileData); ok {
		switch data.GUID {
		case *uefi.PhoenixHashFileGUID, *uefi.AMIHashFileGUID:
			return p.parseVendorHashFile(fileNode)
		case *uefi.NVARStoreGUID:
			// NVAR variable stores belong to the NVRAM parser.
			return nil
		}
	}

	switch uefi.FVFileType(fileNode.Subtype()) {
	case uefi.FVFileTypePad:
		return p.parsePadFileBody(fileNode)
	case uefi.FVFileTypeRaw, uefi.FVFileTypeAll:
		return p.parseRawAreaTolerant(fileNode)
	default:
		return p.parseSections(fileNode.Body(), fileNode, false)
	}
}

// parseRawAreaTolerant treats a missing volume inside a raw body as
// nothing to do.
func (p *Parser) parseRawAreaTolerant(node *treemodel.Node) error {
	err := p.parseRawArea(node)
	if errors.Is(err, ErrVolumesNotFound) {
		return nil
	}
	return err
}

// parsePadFileBody checks that a pad file is actually empty and splits
// off any non-UEFI data found inside.
func (p *Parser) parsePadFileBody(fileNode *treemodel.Node) error {
	if fileNode == nil {
		return ErrInvalidParameter
	}
	data, _ := fileNode.ParsingData().(*treemodel.FileData)
	emptyByte := byte(0xFF)
	if data != nil {
		emptyByte = data.EmptyByte
	}

	body := fileNode.Body()
	if bytes.Count(body, emptyByte) == len(body) {
		return nil
	}

	// Search for the first non-empty byte.
	i := 0
	for ; i < len(body); i++ {
		if body[i] != emptyByte {
			break
		}
	}

	bodyOffset := fileNode.Offset() + uint64(len(fileNode.Header()))
	if i >= 8 {
		if uint32(i) != uefi.Align8(uint32(i)) {
			i = int(uefi.Align8(uint32(i))) - 8
		}
		free := bytes.Left(body, i)
		info := fmt.Sprintf("Full size: %Xh (%d)", len(free), len(free))
		if _, err := p.model.AddItem(bodyOffset, treemodel.TypeFreeSpace, 0, "Free space", "", info,
			nil, free, nil, false, fileNode, treemodel.ModeAppend); err != nil {
			return err
		}
	} else {
		i = 0
	}

	padding := bytes.Mid(body, i, -1)
	info := fmt.Sprintf("Full size: %Xh (%d)", len(padding), len(padding))
	paddingNode, err := p.model.AddItem(bodyOffset+uint64(i), treemodel.TypePadding, treemodel.SubtypeDataPadding,
		"Non-UEFI data", "", info, nil, padding, nil, true, fileNode, treemodel.ModeAppend)
	if err != nil {
		return err
	}
	p.msg(paddingNode, "parsePadFileBody: non-UEFI data found in pad-file")

	p.model.SetName(fileNode, "Non-empty pad-file")
	return nil
}
