// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	stdbytes "bytes"
	"encoding/binary"
	"fmt"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bootguard"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

type protectedRangeType int

const (
	protectedRangeIntelBootGuard protectedRangeType = iota
	protectedRangeVendorHashPhoenix
	protectedRangeVendorHashAMIOld
	protectedRangeVendorHashAMINew
)

// protectedRange is one flash range a manifest or vendor hash file
// declares as measured.
type protectedRange struct {
	bytes.Range
	Type        protectedRangeType
	AlgorithmID uint16
	Hash        []byte
}

// PhoenixHashTableSignature keys a Phoenix vendor hash file body.
var PhoenixHashTableSignature = []byte("$HASHTBL")

type phoenixHashEntry struct {
	Offset uint32
	Size   uint32
	Hash   [32]uint8
}

type amiHashEntryNew struct {
	Offset uint32
	Size   uint32
	Hash   [32]uint8
}

type amiHashEntryOld struct {
	Size uint32
	Hash [32]uint8
}

// parseVendorHashFile decodes one of the recognized vendor hash file
// dialects and records its protected ranges.
func (p *Parser) parseVendorHashFile(fileNode *treemodel.Node) error {
	data, ok := fileNode.ParsingData().(*treemodel.FileData)
	if !ok {
		return ErrInvalidParameter
	}
	body := fileNode.Body()

	switch data.GUID {
	case *uefi.PhoenixHashFileGUID:
		if len(body) < len(PhoenixHashTableSignature)+4 ||
			!bytes.StartsWith(body, PhoenixHashTableSignature) {
			p.msg(fileNode, "parseVendorHashFile: Phoenix hash file signature is invalid")
			return ErrInvalidFile
		}
		entryCount := int(binary.LittleEndian.Uint32(body[len(PhoenixHashTableSignature):]))
		entrySize := binary.Size(phoenixHashEntry{})
		if entryCount == 0 || len(body) < len(PhoenixHashTableSignature)+4+entryCount*entrySize {
			p.msg(fileNode, "parseVendorHashFile: Phoenix hash file entry count is invalid")
			return ErrInvalidFile
		}
		r := stdbytes.NewReader(body[len(PhoenixHashTableSignature)+4:])
		var ranges int
		for i := 0; i < entryCount; i++ {
			var entry phoenixHashEntry
			if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
				return ErrInvalidFile
			}
			if entry.Size == 0 {
				continue
			}
			p.protectedRanges = append(p.protectedRanges, protectedRange{
				Range:       bytes.Range{Offset: uint64(entry.Offset), Length: uint64(entry.Size)},
				Type:        protectedRangeVendorHashPhoenix,
				AlgorithmID: bootguard.AlgSHA256,
				Hash:        append([]byte{}, entry.Hash[:]...),
			})
			ranges++
		}
		p.model.SetText(fileNode, "Hash table")
		p.model.AddInfo(fileNode, fmt.Sprintf("\nProtected ranges: %d", ranges), false)

	case *uefi.AMIHashFileGUID:
		if len(body) == binary.Size(amiHashEntryOld{}) {
			var entry amiHashEntryOld
			if err := binary.Read(stdbytes.NewReader(body), binary.LittleEndian, &entry); err != nil {
				return ErrInvalidFile
			}
			if entry.Size == 0 {
				p.msg(fileNode, "parseVendorHashFile: AMI hash file range size is zero")
				return ErrInvalidFile
			}
			p.protectedRanges = append(p.protectedRanges, protectedRange{
				Range:       bytes.Range{Offset: 0, Length: uint64(entry.Size)},
				Type:        protectedRangeVendorHashAMIOld,
				AlgorithmID: bootguard.AlgSHA256,
				Hash:        append([]byte{}, entry.Hash[:]...),
			})
			p.model.SetText(fileNode, "Hash file")
			p.model.AddInfo(fileNode, "\nProtected ranges: 1", false)
			return nil
		}

		entrySize := binary.Size(amiHashEntryNew{})
		if len(body) == 0 || len(body)%entrySize != 0 {
			p.msg(fileNode, "parseVendorHashFile: AMI hash file has an invalid size")
			return ErrInvalidFile
		}
		r := stdbytes.NewReader(body)
		var ranges int
		for i := 0; i < len(body)/entrySize; i++ {
			var entry amiHashEntryNew
			if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
				return ErrInvalidFile
			}
			if entry.Size == 0 {
				continue
			}
			p.protectedRanges = append(p.protectedRanges, protectedRange{
				Range:       bytes.Range{Offset: uint64(entry.Offset), Length: uint64(entry.Size)},
				Type:        protectedRangeVendorHashAMINew,
				AlgorithmID: bootguard.AlgSHA256,
				Hash:        append([]byte{}, entry.Hash[:]...),
			})
			ranges++
		}
		p.model.SetText(fileNode, "Hash file")
		p.model.AddInfo(fileNode, fmt.Sprintf("\nProtected ranges: %d", ranges), false)
	}

	return nil
}

// firstVolumeOffset returns the offset of the first volume in the
// tree; Phoenix ranges are rooted there.
func (p *Parser) firstVolumeOffset() (uint64, bool) {
	var offset uint64
	found := false
	p.model.Walk(func(node *treemodel.Node) bool {
		if node.Type() == treemodel.TypeVolume && !node.Compressed() {
			offset = node.Offset()
			found = true
			return false
		}
		return true
	})
	return offset, found
}

// checkProtectedRanges recomputes the digests over every declared
// protected range and marks the covered nodes.
func (p *Parser) checkProtectedRanges() {
	if len(p.protectedRanges) == 0 {
		return
	}

	// Boot Guard IBB ranges hash together against the Boot Policy
	// digest.
	var bgRanges bytes.Ranges
	var bgAlgorithm uint16
	var bgHash []byte
	for _, r := range p.protectedRanges {
		if r.Type != protectedRangeIntelBootGuard {
			continue
		}
		if r.Offset < p.addressDiff {
			p.msg(nil, "checkProtectedRanges: BG-protected range is located outside of the image")
			continue
		}
		bgRanges = append(bgRanges, bytes.Range{Offset: r.Offset - p.addressDiff, Length: r.Length})
		bgAlgorithm = r.AlgorithmID
		bgHash = r.Hash
	}
	if len(bgRanges) != 0 {
		bgRanges.Sort()
		digest, err := bootguard.ComputeHash(bgAlgorithm, bgRanges.Compile(p.image))
		if err != nil {
			p.msg(p.bgBootPolicy, fmt.Sprintf("checkProtectedRanges: %v", err))
		} else {
			mismatch := !stdbytes.Equal(digest, bgHash)
			if mismatch {
				p.msg(p.bgBootPolicy, "checkProtectedRanges: BG-protected ranges hash mismatch")
			}
			for _, r := range bgRanges {
				p.markProtectedRange(r, mismatch)
			}
		}
	}

	// Vendor ranges carry one digest each.
	for _, r := range p.protectedRanges {
		var fileRange bytes.Range
		switch r.Type {
		case protectedRangeIntelBootGuard:
			continue
		case protectedRangeVendorHashPhoenix:
			base, found := p.firstVolumeOffset()
			if !found {
				p.msg(nil, "checkProtectedRanges: no volume to root a Phoenix protected range at")
				continue
			}
			fileRange = bytes.Range{Offset: base + r.Offset, Length: r.Length}
		case protectedRangeVendorHashAMIOld:
			if p.firstDxeCore == nil {
				p.msg(nil, "checkProtectedRanges: no DXE core to root an AMI protected range at")
				continue
			}
			dxeVolume := p.model.FindLastParentOfType(p.firstDxeCore, treemodel.TypeVolume)
			if dxeVolume == nil {
				continue
			}
			fileRange = bytes.Range{Offset: dxeVolume.Offset(), Length: r.Length}
		case protectedRangeVendorHashAMINew:
			if r.Offset < p.addressDiff {
				p.msg(nil, "checkProtectedRanges: protected range is located outside of the image")
				continue
			}
			fileRange = bytes.Range{Offset: r.Offset - p.addressDiff, Length: r.Length}
		}

		if fileRange.End() > uint64(len(p.image)) {
			p.msg(nil, "checkProtectedRanges: protected range is located outside of the image")
			continue
		}
		digest, err := bootguard.ComputeHash(r.AlgorithmID, p.image[fileRange.Offset:fileRange.End()])
		if err != nil {
			p.msg(nil, fmt.Sprintf("checkProtectedRanges: %v", err))
			continue
		}
		mismatch := !stdbytes.Equal(digest, r.Hash)
		if mismatch {
			p.msg(nil, "checkProtectedRanges: protected range hash mismatch")
		}
		p.markProtectedRange(fileRange, mismatch)
	}
}

// markProtectedRange colours every uncompressed node touching the
// range: one marking for full containment, another for overlap, and a
// violation marking when the digest did not match.
func (p *Parser) markProtectedRange(r bytes.Range, mismatch bool) {
	p.model.Walk(func(node *treemodel.Node) bool {
		if node == p.model.Root() || node.Compressed() {
			return true
		}
		nodeRange := bytes.Range{Offset: node.Offset(), Length: node.Size()}
		if !r.Intersect(nodeRange) {
			return true
		}
		switch {
		case mismatch:
			p.model.SetMarking(node, treemodel.MarkingViolatesRange)
		case r.Contains(nodeRange):
			p.model.SetMarking(node, treemodel.MarkingFullRange)
		default:
			p.model.SetMarking(node, treemodel.MarkingPartialRange)
		}
		return true
	})
}
