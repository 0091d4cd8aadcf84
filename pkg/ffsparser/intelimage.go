// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	stdbytes "bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

type regionInfo struct {
	offset  uint64
	length  uint64
	subtype uint8
	data    []byte
}

// parseIntelImage decodes the flash descriptor, orders the declared
// regions with synthesized padding in between, and descends into the
// BIOS and PDR regions.
func (p *Parser) parseIntelImage(intelImage []byte, parentOffset uint64, parent *treemodel.Node) error {
	if len(intelImage) == 0 {
		return ErrInvalidParameter
	}
	if len(intelImage) < uefi.FlashDescriptorSize {
		p.msg(nil, "parseIntelImage: input file is smaller than minimum descriptor size of 1000h (4096) bytes")
		return ErrInvalidFlashDescriptor
	}

	descriptor := bytes.Left(intelImage, uefi.FlashDescriptorSize)
	descriptorMap, err := uefi.ParseDescriptorMap(bytes.Mid(descriptor, uefi.FlashDescriptorSignatureOffset+4, 12))
	if err != nil {
		return ErrInvalidFlashDescriptor
	}

	// Sub-section bases must be sane and pairwise distinct.
	if descriptorMap.MasterBase > uefi.FlashDescriptorMaxBase ||
		descriptorMap.MasterBase == descriptorMap.RegionBase ||
		descriptorMap.MasterBase == descriptorMap.ComponentBase {
		p.msg(nil, fmt.Sprintf("parseIntelImage: invalid descriptor master base %02Xh", descriptorMap.MasterBase))
		return ErrInvalidFlashDescriptor
	}
	if descriptorMap.RegionBase > uefi.FlashDescriptorMaxBase ||
		descriptorMap.RegionBase == descriptorMap.ComponentBase {
		p.msg(nil, fmt.Sprintf("parseIntelImage: invalid descriptor region base %02Xh", descriptorMap.RegionBase))
		return ErrInvalidFlashDescriptor
	}
	if descriptorMap.ComponentBase > uefi.FlashDescriptorMaxBase {
		p.msg(nil, fmt.Sprintf("parseIntelImage: invalid descriptor component base %02Xh", descriptorMap.ComponentBase))
		return ErrInvalidFlashDescriptor
	}

	var regionSection uefi.RegionSection
	regionStart := int(descriptorMap.RegionBase) << 4
	if err := binary.Read(stdbytes.NewReader(bytes.Mid(descriptor, regionStart, uefi.RegionSectionSize)),
		binary.LittleEndian, &regionSection); err != nil {
		return ErrInvalidFlashDescriptor
	}

	// The component section's read clock frequency tells descriptor
	// versions apart: 20 MHz is the pre-Skylake layout, everything
	// else the newer one.
	componentStart := int(descriptorMap.ComponentBase) << 4
	component := bytes.Mid(descriptor, componentStart, 12)
	if len(component) < 3 {
		return ErrInvalidFlashDescriptor
	}
	descriptorVersion := 2
	if component[2]>>1&0x7 == uefi.FlashFrequency20MHz {
		descriptorVersion = 1
	}

	var regions []regionInfo

	addRegion := func(subtype uint8, base, limit uint16) *regionInfo {
		r := regionInfo{
			subtype: subtype,
			offset:  uint64(uefi.RegionOffset(base)),
			length:  uint64(uefi.RegionSize(base, limit)),
		}
		r.data = bytes.Mid(intelImage, int(r.offset), int(r.length))
		regions = append(regions, r)
		return &regions[len(regions)-1]
	}

	var me *regionInfo
	if regionSection.MeLimit != 0 {
		me = addRegion(treemodel.SubtypeMeRegion, regionSection.MeBase, regionSection.MeLimit)
	}

	if regionSection.BiosLimit == 0 {
		p.msg(nil, "parseIntelImage: descriptor parsing failed, BIOS region not found in descriptor")
		return ErrInvalidFlashDescriptor
	}
	bios := addRegion(treemodel.SubtypeBiosRegion, regionSection.BiosBase, regionSection.BiosLimit)
	if bios.length == uint64(len(intelImage)) {
		// Gigabyte-specific descriptor map: the BIOS region spans the
		// whole image and really starts where the ME region ends.
		if me == nil {
			p.msg(nil, "parseIntelImage: can't determine BIOS region start from Gigabyte-specific descriptor")
			return ErrInvalidFlashDescriptor
		}
		bios.offset = me.offset + me.length
		bios.length = uint64(len(intelImage)) - bios.offset
		bios.data = bytes.Mid(intelImage, int(bios.offset), int(bios.length))
	}

	if regionSection.GbeLimit != 0 {
		addRegion(treemodel.SubtypeGbeRegion, regionSection.GbeBase, regionSection.GbeLimit)
	}
	if regionSection.PdrLimit != 0 {
		addRegion(treemodel.SubtypePdrRegion, regionSection.PdrBase, regionSection.PdrLimit)
	}
	if regionSection.Reserved1Limit != 0 && regionSection.Reserved1Base != 0xFFFF && regionSection.Reserved1Limit != 0xFFFF {
		addRegion(treemodel.SubtypeReserved1Region, regionSection.Reserved1Base, regionSection.Reserved1Limit)
	}
	if regionSection.Reserved2Limit != 0 && regionSection.Reserved2Base != 0xFFFF && regionSection.Reserved2Limit != 0xFFFF {
		addRegion(treemodel.SubtypeReserved2Region, regionSection.Reserved2Base, regionSection.Reserved2Limit)
	}
	if descriptorVersion == 2 {
		if regionSection.Reserved3Limit != 0 {
			addRegion(treemodel.SubtypeReserved3Region, regionSection.Reserved3Base, regionSection.Reserved3Limit)
		}
		if regionSection.EcLimit != 0 {
			addRegion(treemodel.SubtypeEcRegion, regionSection.EcBase, regionSection.EcLimit)
		}
		if regionSection.Reserved4Limit != 0 {
			addRegion(treemodel.SubtypeReserved4Region, regionSection.Reserved4Base, regionSection.Reserved4Limit)
		}
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].offset < regions[j].offset })

	// Check intersection with the descriptor itself and synthesize
	// padding before the first region.
	if regions[0].offset < uefi.FlashDescriptorSize {
		p.msg(nil, fmt.Sprintf("parseIntelImage: %s region has intersection with flash descriptor",
			treemodel.SubtypeString(treemodel.TypeRegion, regions[0].subtype)))
		return ErrInvalidFlashDescriptor
	}
	if regions[0].offset > uefi.FlashDescriptorSize {
		pad := regionInfo{
			offset: uefi.FlashDescriptorSize,
			length: regions[0].offset - uefi.FlashDescriptorSize,
		}
		pad.data = bytes.Mid(intelImage, int(pad.offset), int(pad.length))
		pad.subtype = paddingSubtype(pad.data)
		regions = append([]regionInfo{pad}, regions...)
	}

	// Check intersections and synthesize padding between the regions.
	for i := 1; i < len(regions); i++ {
		previousEnd := regions[i-1].offset + regions[i-1].length
		if regions[i].offset+regions[i].length > uint64(len(intelImage)) {
			p.msg(nil, fmt.Sprintf("parseIntelImage: %s region is located outside of opened image, if your system uses dual-chip storage, please append another part to the opened image",
				treemodel.SubtypeString(treemodel.TypeRegion, regions[i].subtype)))
			return ErrTruncatedImage
		}
		if regions[i].offset < previousEnd {
			p.msg(nil, fmt.Sprintf("parseIntelImage: %s region has intersection with %s region",
				treemodel.SubtypeString(treemodel.TypeRegion, regions[i].subtype),
				treemodel.SubtypeString(treemodel.TypeRegion, regions[i-1].subtype)))
			return ErrInvalidFlashDescriptor
		}
		if regions[i].offset > previousEnd {
			pad := regionInfo{offset: previousEnd, length: regions[i].offset - previousEnd}
			pad.data = bytes.Mid(intelImage, int(pad.offset), int(pad.length))
			pad.subtype = paddingSubtype(pad.data)
			regions = append(regions[:i], append([]regionInfo{pad}, regions[i:]...)...)
			i++
		}
	}

	// Trailing padding.
	last := regions[len(regions)-1]
	if last.offset+last.length < uint64(len(intelImage)) {
		pad := regionInfo{offset: last.offset + last.length, length: uint64(len(intelImage)) - last.offset - last.length}
		pad.data = bytes.Mid(intelImage, int(pad.offset), int(pad.length))
		pad.subtype = paddingSubtype(pad.data)
		regions = append(regions, pad)
	}

	// Region map is consistent, emit the Intel image node.
	info := fmt.Sprintf("Full size: %Xh (%d)\nFlash chips: %d\nRegions: %d\nMasters: %d\nPCH straps: %d\nPROC straps: %d",
		len(intelImage), len(intelImage),
		descriptorMap.NumberOfFlashChips+1,
		descriptorMap.NumberOfRegions+1,
		descriptorMap.NumberOfMasters+1,
		descriptorMap.NumberOfPchStraps,
		descriptorMap.NumberOfProcStraps)

	imageNode, err := p.model.AddItem(parentOffset, treemodel.TypeImage, treemodel.SubtypeIntelImage,
		"Intel image", "", info, nil, intelImage, nil, true, parent, treemodel.ModeAppend)
	if err != nil {
		return err
	}

	if _, err := p.addDescriptorRegion(descriptor, descriptorMap, parentOffset, descriptorVersion, regions, imageNode); err != nil {
		return err
	}

	var parseResult error
	for _, region := range regions {
		var result error
		switch region.subtype {
		case treemodel.SubtypeBiosRegion:
			result = p.parseBiosRegion(region, parentOffset, imageNode)
		case treemodel.SubtypeMeRegion:
			result = p.parseMeRegion(region, parentOffset, imageNode)
		case treemodel.SubtypeGbeRegion:
			result = p.parseGbeRegion(region, parentOffset, imageNode)
		case treemodel.SubtypePdrRegion:
			result = p.parsePdrRegion(region, parentOffset, imageNode)
		case treemodel.SubtypeReserved1Region, treemodel.SubtypeReserved2Region,
			treemodel.SubtypeReserved3Region, treemodel.SubtypeEcRegion, treemodel.SubtypeReserved4Region:
			result = p.parseGeneralRegion(region, parentOffset, imageNode)
		case treemodel.SubtypeZeroPadding, treemodel.SubtypeOnePadding, treemodel.SubtypeDataPadding:
			_, result = p.addPadding(parentOffset+region.offset, region.data, imageNode)
		default:
			p.msg(imageNode, "parseIntelImage: region of unknown type found")
			result = ErrInvalidFlashDescriptor
		}
		// Store the first failed result as the final result.
		if parseResult == nil && result != nil {
			parseResult = result
		}
	}

	return parseResult
}

// addDescriptorRegion emits the Descriptor region node carrying region
// offsets, access rights and the VSCC table in its info.
func (p *Parser) addDescriptorRegion(descriptor []byte, descriptorMap *uefi.DescriptorMap,
	parentOffset uint64, descriptorVersion int, regions []regionInfo, parent *treemodel.Node) (*treemodel.Node, error) {

	info := "Full size: 1000h (4096)"
	for _, region := range regions {
		switch region.subtype {
		case treemodel.SubtypeZeroPadding, treemodel.SubtypeOnePadding, treemodel.SubtypeDataPadding:
			continue
		}
		info += fmt.Sprintf("\n%s region offset: %Xh",
			treemodel.SubtypeString(treemodel.TypeRegion, region.subtype), region.offset+parentOffset)
	}

	masterStart := int(descriptorMap.MasterBase) << 4
	yn := func(v, mask uint16) string {
		if v&mask != 0 {
			return "Yes "
		}
		return "No  "
	}
	accessTable := func(read, write uint16) string {
		t := "\nBIOS access table:"
		t += "\n      Read  Write"
		t += fmt.Sprintf("\nDesc  %s  %s", yn(read, uefi.RegionAccessDesc), yn(write, uefi.RegionAccessDesc))
		t += "\nBIOS  Yes   Yes"
		t += fmt.Sprintf("\nME    %s  %s", yn(read, uefi.RegionAccessME), yn(write, uefi.RegionAccessME))
		t += fmt.Sprintf("\nGbE   %s  %s", yn(read, uefi.RegionAccessGbE), yn(write, uefi.RegionAccessGbE))
		t += fmt.Sprintf("\nPDR   %s  %s", yn(read, uefi.RegionAccessPDR), yn(write, uefi.RegionAccessPDR))
		return t
	}

	if descriptorVersion == 1 {
		var master uefi.MasterSection
		if err := binary.Read(stdbytes.NewReader(bytes.Mid(descriptor, masterStart, 12)),
			binary.LittleEndian, &master); err == nil {
			info += "\nRegion access settings:"
			info += fmt.Sprintf("\nBIOS: %02Xh %02Xh ME: %02Xh %02Xh\nGbE:  %02Xh %02Xh",
				master.BiosRead, master.BiosWrite, master.MeRead, master.MeWrite, master.GbeRead, master.GbeWrite)
			info += accessTable(uint16(master.BiosRead), uint16(master.BiosWrite))
		}
	} else {
		if master, err := uefi.ParseMasterSectionV2(bytes.Mid(descriptor, masterStart, 16)); err == nil {
			info += "\nRegion access settings:"
			info += fmt.Sprintf("\nBIOS: %03Xh %03Xh ME: %03Xh %03Xh\nGbE:  %03Xh %03Xh EC: %03Xh %03Xh",
				master.BiosRead, master.BiosWrite, master.MeRead, master.MeWrite,
				master.GbeRead, master.GbeWrite, master.EcRead, master.EcWrite)
			info += accessTable(master.BiosRead, master.BiosWrite)
			info += fmt.Sprintf("\nEC    %s  %s",
				yn(master.BiosRead, uefi.RegionAccessEC), yn(master.BiosWrite, uefi.RegionAccessEC))
		}
	}

	// VSCC table chips.
	if len(descriptor) >= uefi.FlashDescriptorUpperMapBase+2 {
		vsccBase := int(descriptor[uefi.FlashDescriptorUpperMapBase]) << 4
		vsccSize := int(descriptor[uefi.FlashDescriptorUpperMapBase+1]) * 4 / 8
		info += "\nFlash chips in VSCC table:"
		for i := 0; i < vsccSize; i++ {
			entry := bytes.Mid(descriptor, vsccBase+i*8, 8)
			if len(entry) < 3 {
				break
			}
			info += fmt.Sprintf("\n%02X%02X%02Xh", entry[0], entry[1], entry[2])
		}
	}

	return p.model.AddItem(parentOffset, treemodel.TypeRegion, treemodel.SubtypeDescriptorRegion,
		"Descriptor region", "", info, nil, bytes.Left(descriptor, uefi.FlashDescriptorSize),
		nil, true, parent, treemodel.ModeAppend)
}

func (p *Parser) parseBiosRegion(region regionInfo, parentOffset uint64, parent *treemodel.Node) error {
	if len(region.data) == 0 {
		return ErrEmptyRegion
	}

	info := fmt.Sprintf("Full size: %Xh (%d)", len(region.data), len(region.data))
	node, err := p.model.AddItem(parentOffset+region.offset, treemodel.TypeRegion, treemodel.SubtypeBiosRegion,
		"BIOS region", "", info, nil, region.data, nil, true, parent, treemodel.ModeAppend)
	if err != nil {
		return err
	}

	// A BIOS region without a single volume stays an opaque leaf.
	if err := p.parseRawArea(node); err != nil && !errors.Is(err, ErrVolumesNotFound) {
		return err
	}
	return nil
}

func (p *Parser) parseMeRegion(region regionInfo, parentOffset uint64, parent *treemodel.Node) error {
	if len(region.data) == 0 {
		return ErrEmptyRegion
	}

	info := fmt.Sprintf("Full size: %Xh (%d)", len(region.data), len(region.data))

	versionFound := true
	emptyRegion := false
	if bytes.Count(region.data, 0xFF) == len(region.data) || bytes.Count(region.data, 0x00) == len(region.data) {
		emptyRegion = true
		info += "\nState: empty"
	} else {
		versionOffset := bytes.IndexOf(region.data, uefi.MeVersionSignatureNew, 0)
		if versionOffset == bytes.NotFound {
			versionOffset = bytes.IndexOf(region.data, uefi.MeVersionSignatureOld, 0)
			if versionOffset == bytes.NotFound {
				info += "\nVersion: unknown"
				versionFound = false
			}
		}

		if versionFound {
			if len(region.data) < versionOffset+uefi.MeVersionSize {
				return ErrInvalidRegion
			}
			var version uefi.MeVersion
			if err := binary.Read(stdbytes.NewReader(bytes.Mid(region.data, versionOffset, uefi.MeVersionSize)),
				binary.LittleEndian, &version); err != nil {
				return ErrInvalidRegion
			}
			info += fmt.Sprintf("\nVersion: %d.%d.%d.%d", version.Major, version.Minor, version.Bugfix, version.Build)
		}
	}

	node, err := p.model.AddItem(parentOffset+region.offset, treemodel.TypeRegion, treemodel.SubtypeMeRegion,
		"ME region", "", info, nil, region.data, nil, true, parent, treemodel.ModeAppend)
	if err != nil {
		return err
	}

	if emptyRegion {
		p.msg(node, "parseMeRegion: ME region is empty")
	} else if !versionFound {
		p.msg(node, "parseMeRegion: ME version is unknown, it can be damaged")
	}

	return nil
}

func (p *Parser) parseGbeRegion(region regionInfo, parentOffset uint64, parent *treemodel.Node) error {
	if len(region.data) == 0 {
		return ErrEmptyRegion
	}
	if len(region.data) < uefi.GbeVersionOffset+2 {
		return ErrInvalidRegion
	}

	version, err := uefi.ParseGbeVersion(bytes.Mid(region.data, uefi.GbeVersionOffset, 2))
	if err != nil {
		return ErrInvalidRegion
	}
	info := fmt.Sprintf("Full size: %Xh (%d)\nMAC: %02X:%02X:%02X:%02X:%02X:%02X\nVersion: %d.%d",
		len(region.data), len(region.data),
		region.data[0], region.data[1], region.data[2],
		region.data[3], region.data[4], region.data[5],
		version.Major, version.Minor)

	_, err = p.model.AddItem(parentOffset+region.offset, treemodel.TypeRegion, treemodel.SubtypeGbeRegion,
		"GbE region", "", info, nil, region.data, nil, true, parent, treemodel.ModeAppend)
	return err
}

func (p *Parser) parsePdrRegion(region regionInfo, parentOffset uint64, parent *treemodel.Node) error {
	if len(region.data) == 0 {
		return ErrEmptyRegion
	}

	info := fmt.Sprintf("Full size: %Xh (%d)", len(region.data), len(region.data))
	node, err := p.model.AddItem(parentOffset+region.offset, treemodel.TypeRegion, treemodel.SubtypePdrRegion,
		"PDR region", "", info, nil, region.data, nil, true, parent, treemodel.ModeAppend)
	if err != nil {
		return err
	}

	// PDR regions may carry volumes like a BIOS space does.
	if err := p.parseRawArea(node); err != nil &&
		!errors.Is(err, ErrVolumesNotFound) && !errors.Is(err, ErrInvalidVolume) {
		return err
	}
	return nil
}

func (p *Parser) parseGeneralRegion(region regionInfo, parentOffset uint64, parent *treemodel.Node) error {
	if len(region.data) == 0 {
		return ErrEmptyRegion
	}

	name := treemodel.SubtypeString(treemodel.TypeRegion, region.subtype) + " region"
	info := fmt.Sprintf("Full size: %Xh (%d)", len(region.data), len(region.data))
	_, err := p.model.AddItem(parentOffset+region.offset, treemodel.TypeRegion, region.subtype,
		name, "", info, nil, region.data, nil, true, parent, treemodel.ModeAppend)
	return err
}
