// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	stdbytes "bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/compression"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/integrity"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

// getSectionSize reads the declared size of the section at
// sectionOffset.
func getSectionSize(body []byte, sectionOffset int, ffsVersion uint8) uint32 {
	if len(body) < sectionOffset+uefi.SectionHeaderSize {
		return 0
	}
	size := uint32(body[sectionOffset]) |
		uint32(body[sectionOffset+1])<<8 |
		uint32(body[sectionOffset+2])<<16
	if ffsVersion == 3 && size == uefi.Section2IsUsed {
		if len(body) < sectionOffset+uefi.SectionHeaderExtSize {
			return 0
		}
		return binary.LittleEndian.Uint32(body[sectionOffset+4:])
	}
	return size
}

// ffsVersionFor returns the FFS version governing a node's sections.
func (p *Parser) ffsVersionFor(node *treemodel.Node) uint8 {
	if data, ok := p.volumeDataFor(node); ok && data != nil {
		return data.FFSVersion
	}
	return 2
}

// parseSections enumerates the sections of body. In preparse mode
// nothing is added to the tree and the first irregularity fails the
// whole call; this is how ambiguous decompression outputs are probed.
func (p *Parser) parseSections(sections []byte, parent *treemodel.Node, preparse bool) error {
	if parent == nil {
		return ErrInvalidParameter
	}

	ffsVersion := p.ffsVersionFor(parent)
	headerSize := uint64(len(parent.Header()))
	bodySize := len(sections)

	for sectionOffset := 0; sectionOffset < bodySize; {
		sectionSize := int(getSectionSize(sections, sectionOffset, ffsVersion))

		if sectionSize < uefi.SectionHeaderSize || sectionSize > bodySize-sectionOffset {
			if preparse {
				return ErrInvalidSection
			}
			// Fill the rest of the sections area with padding.
			padding := bytes.Mid(sections, sectionOffset, -1)
			info := fmt.Sprintf("Full size: %Xh (%d)", len(padding), len(padding))
			paddingNode, err := p.model.AddItem(parent.Offset()+headerSize+uint64(sectionOffset),
				treemodel.TypePadding, treemodel.SubtypeDataPadding, "Non-UEFI data", "", info,
				nil, padding, nil, true, parent, treemodel.ModeAppend)
			if err != nil {
				return err
			}
			p.msg(paddingNode, "parseSections: non-UEFI data found in sections area")
			break
		}

		err := p.parseSectionHeader(bytes.Mid(sections, sectionOffset, sectionSize),
			parent.Offset()+headerSize+uint64(sectionOffset), parent, preparse)
		if err != nil {
			if preparse {
				return ErrInvalidSection
			}
			p.msg(parent, fmt.Sprintf("parseSections: section header parsing failed with error %q", err))
		}

		sectionOffset += sectionSize
		sectionOffset = int(uefi.Align4(uint32(sectionOffset)))
	}

	if preparse {
		return nil
	}

	// Parse the section bodies. Body failures were already logged and
	// must not fail the siblings.
	for _, child := range parent.Children() {
		switch child.Type() {
		case treemodel.TypeSection:
			_ = p.parseSectionBody(child)
		case treemodel.TypePadding:
			// No parsing required.
		default:
			return ErrUnknownItemType
		}
	}

	return nil
}

// sectionCommon captures what every section header variant produces.
type sectionCommon struct {
	headerSize int
	name       string
	text       string
	extraInfo  string
	pdata      treemodel.ParsingData
	msgs       []string
}

// parseSectionHeader decodes the header shape of one section and emits
// the Section node.
func (p *Parser) parseSectionHeader(section []byte, offset uint64, parent *treemodel.Node, preparse bool) error {
	if len(section) < uefi.SectionHeaderSize {
		return ErrInvalidSection
	}
	sectionType := uefi.SectionType(section[3])
	ffsVersion := p.ffsVersionFor(parent)

	// All section headers share a 4 byte lead; the 24 bit size
	// sentinel escalates to the 8 byte extended shape.
	baseHeaderSize := uefi.SectionHeaderSize
	size24 := uint32(section[0]) | uint32(section[1])<<8 | uint32(section[2])<<16
	if ffsVersion == 3 && size24 == uefi.Section2IsUsed {
		baseHeaderSize = uefi.SectionHeaderExtSize
	}

	var (
		common     sectionCommon
		err        error
		msgUnknown bool
	)
	switch sectionType {
	case uefi.SectionTypeCompression:
		common, err = p.parseCompressedSectionHeader(section, baseHeaderSize)
	case uefi.SectionTypeGUIDDefined:
		common, err = p.parseGuidedSectionHeader(section, baseHeaderSize, preparse)
	case uefi.SectionTypeFreeformSubtypeGUID:
		common, err = p.parseFreeformGuidedSectionHeader(section, baseHeaderSize)
	case uefi.SectionTypeVersion:
		common, err = p.parseVersionSectionHeader(section, baseHeaderSize)
	case uefi.SectionTypeInsydePostcode, uefi.SectionTypePhoenixPostcode:
		common, err = p.parsePostcodeSectionHeader(section, baseHeaderSize)
	default:
		common, err = p.parseCommonSectionHeader(section, baseHeaderSize)
		switch sectionType {
		case uefi.SectionTypeAll, uefi.SectionTypeDisposable,
			uefi.SectionTypeDXEDepEx, uefi.SectionTypePEIDepEx, uefi.SectionTypeMMDepEx,
			uefi.SectionTypePE32, uefi.SectionTypePIC, uefi.SectionTypeTE,
			uefi.SectionTypeCompatibility16, uefi.SectionTypeUserInterface,
			uefi.SectionTypeFirmwareVolumeImage, uefi.SectionTypeRaw:
		default:
			msgUnknown = true
		}
	}
	if err != nil {
		return err
	}

	if preparse {
		return nil
	}

	if common.name == "" {
		common.name = sectionType.String() + " section"
	}
	info := fmt.Sprintf("Type: %02Xh\nFull size: %Xh (%d)\nHeader size: %Xh (%d)\nBody size: %Xh (%d)",
		uint8(sectionType),
		len(section), len(section),
		common.headerSize, common.headerSize,
		len(section)-common.headerSize, len(section)-common.headerSize)
	info += common.extraInfo

	node, addErr := p.model.AddItem(offset, treemodel.TypeSection, uint8(sectionType),
		common.name, common.text, info,
		bytes.Left(section, common.headerSize), bytes.Mid(section, common.headerSize, -1),
		common.pdata, false, parent, treemodel.ModeAppend)
	if addErr != nil {
		return addErr
	}

	if msgUnknown {
		p.msg(node, fmt.Sprintf("parseSectionHeader: section with unknown type %02Xh", uint8(sectionType)))
	}
	for _, text := range common.msgs {
		p.msg(node, text)
	}

	return nil
}

func (p *Parser) parseCommonSectionHeader(section []byte, baseHeaderSize int) (sectionCommon, error) {
	headerSize := baseHeaderSize
	// Apple images pad the common header with a reserved sentinel.
	if len(section) >= uefi.SectionHeaderExtSize &&
		binary.LittleEndian.Uint32(section[4:]) == uefi.AppleSectionReserved {
		headerSize = uefi.SectionHeaderExtSize
	}
	if len(section) < headerSize {
		return sectionCommon{}, ErrInvalidSection
	}
	return sectionCommon{headerSize: headerSize}, nil
}

func (p *Parser) parseCompressedSectionHeader(section []byte, baseHeaderSize int) (sectionCommon, error) {
	headerSize := baseHeaderSize + 5 // UncompressedLength + CompressionType
	if len(section) < headerSize {
		return sectionCommon{}, ErrInvalidSection
	}
	uncompressedLength := binary.LittleEndian.Uint32(section[baseHeaderSize:])
	compressionType := section[baseHeaderSize+4]

	extra := fmt.Sprintf("\nCompression type: %02Xh\nDecompressed size: %Xh (%d)",
		compressionType, uncompressedLength, uncompressedLength)
	return sectionCommon{
		headerSize: headerSize,
		extraInfo:  extra,
		pdata: &treemodel.CompressedSectionData{
			CompressionType:  compressionType,
			UncompressedSize: uncompressedLength,
		},
	}, nil
}

func (p *Parser) parseGuidedSectionHeader(section []byte, baseHeaderSize int, preparse bool) (sectionCommon, error) {
	if len(section) < baseHeaderSize+20 {
		return sectionCommon{}, ErrInvalidSection
	}
	sectionGUID := *guid.FromBytes(section[baseHeaderSize:])
	dataOffset := binary.LittleEndian.Uint16(section[baseHeaderSize+16:])
	attributes := binary.LittleEndian.Uint16(section[baseHeaderSize+18:])
	nextHeaderOffset := baseHeaderSize + 20

	var extra string
	var msgs []string
	switch sectionGUID {
	case *uefi.GUIDedSectionCRC32:
		if attributes&uefi.GUIDedSectionAuthStatusValid == 0 {
			msgs = append(msgs, "parseGuidedSectionHeader: CRC32 GUIDed section without AuthStatusValid attribute")
		}
		if len(section) < nextHeaderOffset+4 {
			return sectionCommon{}, ErrInvalidSection
		}
		crc := binary.LittleEndian.Uint32(section[nextHeaderOffset:])
		extra += "\nChecksum type: CRC32"
		calculated := integrity.CRC32(0, bytes.Mid(section, int(dataOffset), -1))
		if crc == calculated {
			extra += fmt.Sprintf("\nChecksum: %08Xh, valid", crc)
		} else {
			extra += fmt.Sprintf("\nChecksum: %08Xh, invalid, should be %08Xh", crc, calculated)
			msgs = append(msgs, "parseGuidedSectionHeader: GUID defined section with invalid CRC32")
		}

	case *uefi.GUIDedSectionLZMA, *uefi.GUIDedSectionLZMAF86, *uefi.GUIDedSectionTiano:
		if attributes&uefi.GUIDedSectionProcessingRequired == 0 {
			msgs = append(msgs, "parseGuidedSectionHeader: compressed GUIDed section without ProcessingRequired attribute")
		}

	case *uefi.FirmwareContentsSignedGUID:
		if attributes&uefi.GUIDedSectionProcessingRequired == 0 {
			msgs = append(msgs, "parseGuidedSectionHeader: signed GUIDed section without ProcessingRequired attribute")
		}
		if len(section) < nextHeaderOffset+8 {
			return sectionCommon{}, ErrInvalidSection
		}
		var cert uefi.WinCertificate
		if err := binary.Read(stdbytes.NewReader(section[nextHeaderOffset:]), binary.LittleEndian, &cert); err != nil {
			return sectionCommon{}, ErrInvalidSection
		}
		// The certificate sits between the header and the payload.
		dataOffset += uint16(cert.Length)
		if len(section) < int(dataOffset) {
			return sectionCommon{}, ErrInvalidSection
		}
		if cert.CertificateType == uefi.WinCertTypeEFIGUID {
			extra += "\nCertificate type: UEFI"
			certGUID := guid.FromBytes(section[nextHeaderOffset+8:])
			if certGUID != nil && *certGUID == *uefi.CertTypeRSA2048SHA256GUID {
				extra += "\nCertificate subtype: RSA2048/SHA256"
			} else {
				extra += fmt.Sprintf("\nCertificate subtype: unknown, GUID %s", certGUID)
				msgs = append(msgs, "parseGuidedSectionHeader: signed GUIDed section with unknown subtype")
			}
		} else {
			extra += fmt.Sprintf("\nCertificate type: unknown %04Xh", cert.CertificateType)
			msgs = append(msgs, "parseGuidedSectionHeader: signed GUIDed section with unknown type")
		}
		msgs = append(msgs, "parseGuidedSectionHeader: section signature may become invalid after any modification")
	}

	if int(dataOffset) > len(section) || int(dataOffset) < nextHeaderOffset {
		return sectionCommon{}, ErrInvalidSection
	}

	extraInfo := fmt.Sprintf("\nSection GUID: %s\nData offset: %Xh\nAttributes: %04Xh",
		sectionGUID.String(), dataOffset, attributes) + extra

	return sectionCommon{
		headerSize: int(dataOffset),
		name:       sectionGUID.String(),
		extraInfo:  extraInfo,
		pdata: &treemodel.GuidedSectionData{
			GUID:       sectionGUID,
			DataOffset: dataOffset,
			Attributes: attributes,
		},
		msgs: msgs,
	}, nil
}

func (p *Parser) parseFreeformGuidedSectionHeader(section []byte, baseHeaderSize int) (sectionCommon, error) {
	headerSize := baseHeaderSize + 16
	if len(section) < headerSize {
		return sectionCommon{}, ErrInvalidSection
	}
	subTypeGUID := *guid.FromBytes(section[baseHeaderSize:])
	return sectionCommon{
		headerSize: headerSize,
		name:       subTypeGUID.String(),
		extraInfo:  fmt.Sprintf("\nSubtype GUID: %s", subTypeGUID.String()),
		pdata:      &treemodel.FreeformGuidSectionData{GUID: subTypeGUID},
	}, nil
}

func (p *Parser) parseVersionSectionHeader(section []byte, baseHeaderSize int) (sectionCommon, error) {
	headerSize := baseHeaderSize + 2
	if len(section) < headerSize {
		return sectionCommon{}, ErrInvalidSection
	}
	buildNumber := binary.LittleEndian.Uint16(section[baseHeaderSize:])
	return sectionCommon{
		headerSize: headerSize,
		extraInfo:  fmt.Sprintf("\nBuild number: %d", buildNumber),
	}, nil
}

func (p *Parser) parsePostcodeSectionHeader(section []byte, baseHeaderSize int) (sectionCommon, error) {
	headerSize := baseHeaderSize + 4
	if len(section) < headerSize {
		return sectionCommon{}, ErrInvalidSection
	}
	postCode := binary.LittleEndian.Uint32(section[baseHeaderSize:])
	return sectionCommon{
		headerSize: headerSize,
		extraInfo:  fmt.Sprintf("\nPostcode: %Xh", postCode),
	}, nil
}

// parseSectionBody dispatches on the section type.
func (p *Parser) parseSectionBody(node *treemodel.Node) error {
	if node == nil {
		return ErrInvalidParameter
	}
	if len(node.Header()) < uefi.SectionHeaderSize {
		return ErrInvalidSection
	}

	switch uefi.SectionType(node.Subtype()) {
	// Encapsulation sections.
	case uefi.SectionTypeCompression:
		return p.parseCompressedSectionBody(node)
	case uefi.SectionTypeGUIDDefined:
		return p.parseGuidedSectionBody(node)
	case uefi.SectionTypeDisposable:
		return p.parseSections(node.Body(), node, false)
	// Leaf sections with structure.
	case uefi.SectionTypeFreeformSubtypeGUID:
		return p.parseRawAreaTolerant(node)
	case uefi.SectionTypeVersion:
		return p.parseVersionSectionBody(node)
	case uefi.SectionTypeDXEDepEx, uefi.SectionTypePEIDepEx, uefi.SectionTypeMMDepEx:
		return p.parseDepexSectionBody(node)
	case uefi.SectionTypeTE:
		return p.parseTeImageSectionBody(node)
	case uefi.SectionTypePE32, uefi.SectionTypePIC:
		return p.parsePeImageSectionBody(node)
	case uefi.SectionTypeUserInterface:
		return p.parseUiSectionBody(node)
	case uefi.SectionTypeFirmwareVolumeImage:
		return p.parseRawAreaTolerant(node)
	case uefi.SectionTypeRaw:
		return p.parseRawSectionBody(node)
	default:
		// No parsing needed.
		return nil
	}
}

// parseCompressedSectionBody expands a compression section, resolving
// the undecided Tiano/EFI 1.1 ambiguity by pre-parsing both outputs.
func (p *Parser) parseCompressedSectionBody(node *treemodel.Node) error {
	pdata, ok := node.ParsingData().(*treemodel.CompressedSectionData)
	if !ok {
		return ErrInvalidParameter
	}

	algorithm, decompressed, efiDecompressed, err := compression.Decompress(node.Body(), pdata.CompressionType)
	if err != nil {
		p.msg(node, fmt.Sprintf("parseCompressedSectionBody: decompression failed with error %q", err))
		return nil
	}

	if pdata.UncompressedSize != uint32(len(decompressed)) {
		p.msg(node, fmt.Sprintf("parseCompressedSectionBody: decompressed size stored in header %Xh (%d) differs from actual %Xh (%d)",
			pdata.UncompressedSize, pdata.UncompressedSize,
			len(decompressed), len(decompressed)))
		p.model.AddInfo(node, fmt.Sprintf("\nActual decompressed size: %Xh (%d)", len(decompressed), len(decompressed)), false)
	}

	if algorithm == compression.AlgorithmUndecided {
		// Pre-parse both candidates; the one that parses cleanly wins,
		// and Tiano wins ties by being probed first.
		if p.parseSections(decompressed, node, true) == nil {
			algorithm = compression.AlgorithmTiano
		} else if p.parseSections(efiDecompressed, node, true) == nil {
			algorithm = compression.AlgorithmEFI11
			decompressed = efiDecompressed
		} else {
			p.msg(node, "parseCompressedSectionBody: can't guess the correct decompression algorithm, both preparse steps are failed")
		}
	}

	p.model.AddInfo(node, fmt.Sprintf("\nCompression algorithm: %s", algorithm), false)
	pdata.Algorithm = uint8(algorithm)
	if algorithm != compression.AlgorithmNone {
		p.model.SetCompressed(node, true)
	}

	return p.parseSections(decompressed, node, false)
}

// parseGuidedSectionBody expands known GUID-defined encapsulations and
// then parses the processed payload as sections.
func (p *Parser) parseGuidedSectionBody(node *treemodel.Node) error {
	pdata, ok := node.ParsingData().(*treemodel.GuidedSectionData)
	if !ok {
		return ErrInvalidParameter
	}

	processed := node.Body()
	switch pdata.GUID {
	case *uefi.GUIDedSectionTiano:
		algorithm, decompressed, efiDecompressed, err := compression.Decompress(node.Body(), compression.StandardCompression)
		if err != nil {
			p.msg(node, fmt.Sprintf("parseGuidedSectionBody: decompression failed with error %q", err))
			return nil
		}
		if algorithm == compression.AlgorithmUndecided {
			if p.parseSections(decompressed, node, true) == nil {
				algorithm = compression.AlgorithmTiano
			} else if p.parseSections(efiDecompressed, node, true) == nil {
				algorithm = compression.AlgorithmEFI11
				decompressed = efiDecompressed
			} else {
				p.msg(node, "parseGuidedSectionBody: can't guess the correct decompression algorithm, both preparse steps are failed")
			}
		}
		processed = decompressed
		p.model.AddInfo(node, fmt.Sprintf("\nCompression algorithm: %s\nDecompressed size: %Xh (%d)",
			algorithm, len(processed), len(processed)), false)
		p.model.SetCompressed(node, true)

	case *uefi.GUIDedSectionLZMA, *uefi.GUIDedSectionLZMAF86:
		compressor := compression.CompressorFromGUID(&pdata.GUID)
		decompressed, err := compressor.Decode(node.Body())
		if err != nil {
			p.msg(node, fmt.Sprintf("parseGuidedSectionBody: decompression failed with error %q", err))
			return nil
		}
		processed = decompressed
		p.model.AddInfo(node, fmt.Sprintf("\nCompression algorithm: %s\nDecompressed size: %Xh (%d)",
			compressor.Name(), len(processed), len(processed)), false)
		p.model.SetCompressed(node, true)
	}

	return p.parseSections(processed, node, false)
}

var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// ucs2ToString converts the UTF-16 LE body of UI and Version sections,
// stripping the terminator.
func ucs2ToString(body []byte) string {
	if len(body) < 2 {
		return ""
	}
	decoded, err := utf16Decoder.Bytes(body)
	if err != nil {
		return ""
	}
	return string(stdbytes.TrimRight(decoded, "\x00"))
}

func (p *Parser) parseVersionSectionBody(node *treemodel.Node) error {
	p.model.AddInfo(node, "\nVersion string: "+ucs2ToString(node.Body()), false)
	return nil
}

// parseUiSectionBody extracts the display string and renames the parent
// file with it.
func (p *Parser) parseUiSectionBody(node *treemodel.Node) error {
	text := ucs2ToString(node.Body())
	if parentFile := p.model.FindParentOfType(node, treemodel.TypeFile); parentFile != nil {
		p.model.SetText(parentFile, text)
	}
	p.model.AddInfo(node, "\nText: "+text, false)
	return nil
}

// parseDepexSectionBody interprets the dependency opcode stream.
func (p *Parser) parseDepexSectionBody(node *treemodel.Node) error {
	body := node.Body()
	if len(body) < 2 {
		p.msg(node, "parseDepexSectionBody: DEPEX section too short")
		return ErrDepexParseFailed
	}

	var parsed string
	current := 0

	// BEFORE and AFTER must be alone; SOR opens a longer stream.
	switch body[0] {
	case uefi.DepExOpBefore, uefi.DepExOpAfter:
		opName := "BEFORE"
		if body[0] == uefi.DepExOpAfter {
			opName = "AFTER"
		}
		if len(body) != 2*uefi.DepExOpcodeSize+guid.Size {
			p.msg(node, fmt.Sprintf("parseDepexSectionBody: DEPEX section too long for a section starting with %s opcode", opName))
			return nil
		}
		g := guid.FromBytes(body[uefi.DepExOpcodeSize:])
		if body[uefi.DepExOpcodeSize+guid.Size] != uefi.DepExOpEnd {
			p.msg(node, "parseDepexSectionBody: DEPEX section ends with non-END opcode")
			return nil
		}
		p.model.AddInfo(node, fmt.Sprintf("\nParsed expression:\n%s %s\nEND", opName, g), false)
		return nil
	case uefi.DepExOpSOR:
		if len(body) <= 2*uefi.DepExOpcodeSize {
			p.msg(node, "parseDepexSectionBody: DEPEX section too short for a section starting with SOR opcode")
			return nil
		}
		parsed += "\nSOR"
		current += uefi.DepExOpcodeSize
	}

	for current < len(body) {
		switch body[current] {
		case uefi.DepExOpBefore:
			p.msg(node, "parseDepexSectionBody: misplaced BEFORE opcode")
			return nil
		case uefi.DepExOpAfter:
			p.msg(node, "parseDepexSectionBody: misplaced AFTER opcode")
			return nil
		case uefi.DepExOpSOR:
			p.msg(node, "parseDepexSectionBody: misplaced SOR opcode")
			return nil
		case uefi.DepExOpPush:
			if len(body)-current <= uefi.DepExOpcodeSize+guid.Size {
				p.msg(node, "parseDepexSectionBody: remains of DEPEX section too short for PUSH opcode")
				return nil
			}
			parsed += fmt.Sprintf("\nPUSH %s", guid.FromBytes(body[current+uefi.DepExOpcodeSize:]))
			current += uefi.DepExOpcodeSize + guid.Size
		case uefi.DepExOpAnd:
			parsed += "\nAND"
			current += uefi.DepExOpcodeSize
		case uefi.DepExOpOr:
			parsed += "\nOR"
			current += uefi.DepExOpcodeSize
		case uefi.DepExOpNot:
			parsed += "\nNOT"
			current += uefi.DepExOpcodeSize
		case uefi.DepExOpTrue:
			parsed += "\nTRUE"
			current += uefi.DepExOpcodeSize
		case uefi.DepExOpFalse:
			parsed += "\nFALSE"
			current += uefi.DepExOpcodeSize
		case uefi.DepExOpEnd:
			parsed += "\nEND"
			current += uefi.DepExOpcodeSize
			if current < len(body) {
				p.msg(node, "parseDepexSectionBody: DEPEX section ends with non-END opcode")
				return nil
			}
		default:
			p.msg(node, "parseDepexSectionBody: unknown opcode")
			return nil
		}
	}

	p.model.AddInfo(node, "\nParsed expression:"+parsed, false)
	return nil
}

// parsePeImageSectionBody surfaces the headers of a PE32/PE32+ image.
func (p *Parser) parsePeImageSectionBody(node *treemodel.Node) error {
	body := node.Body()
	if len(body) < uefi.ImageDOSHeaderSize {
		p.msg(node, "parsePeImageSectionBody: section body size is smaller than DOS header size")
		return nil
	}

	var info string
	var dosHeader uefi.ImageDOSHeader
	if err := binary.Read(stdbytes.NewReader(body), binary.LittleEndian, &dosHeader); err != nil {
		return nil
	}
	if dosHeader.EMagic != uefi.ImageDOSSignature {
		p.model.AddInfo(node, fmt.Sprintf("\nDOS signature: %04Xh, invalid", dosHeader.EMagic), false)
		p.msg(node, "parsePeImageSectionBody: PE32 image with invalid DOS signature")
		return nil
	}

	peOffset := int(dosHeader.ELfanew)
	if peOffset <= 0 || len(body) < peOffset+4 {
		p.model.AddInfo(node, "\nDOS header: invalid", false)
		p.msg(node, "parsePeImageSectionBody: PE32 image with invalid DOS header")
		return nil
	}

	peSignature := binary.LittleEndian.Uint32(body[peOffset:])
	if peSignature != uefi.ImagePESignature {
		p.model.AddInfo(node, fmt.Sprintf("\nPE signature: %08Xh, invalid", peSignature), false)
		p.msg(node, "parsePeImageSectionBody: PE32 image with invalid PE signature")
		return nil
	}

	fileHeaderOffset := peOffset + 4
	var fileHeader uefi.ImageFileHeader
	if len(body) < fileHeaderOffset+binary.Size(fileHeader) {
		p.model.AddInfo(node, "\nPE header: invalid", false)
		p.msg(node, "parsePeImageSectionBody: PE32 image with invalid PE header")
		return nil
	}
	if err := binary.Read(stdbytes.NewReader(body[fileHeaderOffset:]), binary.LittleEndian, &fileHeader); err != nil {
		return nil
	}

	info += fmt.Sprintf("\nDOS signature: %04Xh\nPE signature: %08Xh\nMachine type: %s\nNumber of sections: %d\nCharacteristics: %04Xh",
		dosHeader.EMagic,
		peSignature,
		uefi.MachineTypeString(fileHeader.Machine),
		fileHeader.NumberOfSections,
		fileHeader.Characteristics)

	optionalOffset := fileHeaderOffset + binary.Size(fileHeader)
	if len(body) < optionalOffset+2 {
		info += "\nPE optional header: invalid"
		p.msg(node, "parsePeImageSectionBody: PE32 image with invalid PE optional header")
		p.model.AddInfo(node, info, false)
		return nil
	}

	magic := binary.LittleEndian.Uint16(body[optionalOffset:])
	switch magic {
	case uefi.OptionalHeaderPE32Magic:
		var optional uefi.ImageOptionalHeader32
		if len(body) >= optionalOffset+binary.Size(optional) {
			if err := binary.Read(stdbytes.NewReader(body[optionalOffset:]), binary.LittleEndian, &optional); err == nil {
				info += fmt.Sprintf("\nOptional header signature: %04Xh\nSubsystem: %04Xh\nAddress of entry point: %Xh\nBase of code: %Xh\nImage base: %Xh",
					optional.Magic, optional.Subsystem, optional.AddressOfEntryPoint, optional.BaseOfCode, optional.ImageBase)
			}
		}
	case uefi.OptionalHeaderPE32PlusMagic:
		var optional uefi.ImageOptionalHeader64
		if len(body) >= optionalOffset+binary.Size(optional) {
			if err := binary.Read(stdbytes.NewReader(body[optionalOffset:]), binary.LittleEndian, &optional); err == nil {
				info += fmt.Sprintf("\nOptional header signature: %04Xh\nSubsystem: %04Xh\nAddress of entry point: %Xh\nBase of code: %Xh\nImage base: %Xh",
					optional.Magic, optional.Subsystem, optional.AddressOfEntryPoint, optional.BaseOfCode, optional.ImageBase)
			}
		}
	default:
		info += fmt.Sprintf("\nOptional header signature: %04Xh, unknown", magic)
		p.msg(node, "parsePeImageSectionBody: PE32 image with invalid optional PE header signature")
	}

	p.model.AddInfo(node, info, false)
	return nil
}

// parseTeImageSectionBody surfaces the TE header and records the image
// bases for the second pass.
func (p *Parser) parseTeImageSectionBody(node *treemodel.Node) error {
	body := node.Body()
	if len(body) < uefi.ImageTEHeaderSize {
		p.msg(node, "parseTeImageSectionBody: section body size is smaller than TE header size")
		return nil
	}

	var teHeader uefi.ImageTEHeader
	if err := binary.Read(stdbytes.NewReader(body), binary.LittleEndian, &teHeader); err != nil {
		return nil
	}

	adjustedImageBase := teHeader.ImageBase + uint64(teHeader.StrippedSize) - uefi.ImageTEHeaderSize
	var info string
	if teHeader.Signature != uefi.ImageTESignature {
		info = fmt.Sprintf("\nSignature: %04Xh, invalid", teHeader.Signature)
		p.msg(node, "parseTeImageSectionBody: TE image with invalid TE signature")
	} else {
		info = fmt.Sprintf("\nSignature: %04Xh\nMachine type: %s\nNumber of sections: %d\nSubsystem: %02Xh\nStripped size: %Xh (%d)\nBase of code: %Xh\nAddress of entry point: %Xh\nImage base: %Xh\nAdjusted image base: %Xh",
			teHeader.Signature,
			uefi.MachineTypeString(teHeader.Machine),
			teHeader.NumberOfSections,
			teHeader.Subsystem,
			teHeader.StrippedSize, teHeader.StrippedSize,
			teHeader.BaseOfCode,
			teHeader.AddressOfEntryPoint,
			teHeader.ImageBase,
			adjustedImageBase)
	}

	p.model.SetParsingData(node, &treemodel.TeSectionData{
		ImageBase:         teHeader.ImageBase,
		AdjustedImageBase: adjustedImageBase,
	})
	p.model.AddInfo(node, info, false)
	return nil
}

// parseRawSectionBody recognizes a-priori dispatch lists on the parent
// file and otherwise treats the body as a raw area.
func (p *Parser) parseRawSectionBody(node *treemodel.Node) error {
	parentFile := p.model.FindParentOfType(node, treemodel.TypeFile)
	if parentFile != nil {
		if data, ok := parentFile.ParsingData().(*treemodel.FileData); ok {
			var listName string
			switch data.GUID {
			case *uefi.PEIAprioriFileGUID:
				listName = "PEI apriori file"
			case *uefi.DXEAprioriFileGUID:
				listName = "DXE apriori file"
			}
			if listName != "" {
				p.parseAprioriRawSection(node)
				p.model.SetText(parentFile, listName)
				return nil
			}
		}
	}

	return p.parseRawAreaTolerant(node)
}

// parseAprioriRawSection renders the GUID list carried by an a-priori
// file.
func (p *Parser) parseAprioriRawSection(node *treemodel.Node) {
	body := node.Body()
	if len(body)%guid.Size != 0 {
		p.msg(node, "parseAprioriRawSection: apriori file has size is not a multiple of 16")
	}
	var parsed string
	for i := 0; i+guid.Size <= len(body); i += guid.Size {
		parsed += fmt.Sprintf("\n%s", guid.FromBytes(body[i:]))
	}
	if parsed != "" {
		p.model.AddInfo(node, "\nFile list:"+parsed, false)
	}
}
