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
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/fit"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/integrity"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
)

// FITRow is one rendered Firmware Interface Table entry.
type FITRow struct {
	Address  string
	Size     string
	Version  string
	Checksum string
	Type     string
	Info     string
}

// FITTable returns the rendered FIT, populated when the second pass
// succeeded and a referenced table was found.
func (p *Parser) FITTable() []FITRow {
	return p.fitRows
}

// parseFit locates the FIT through the last-VTF pointer, validates it
// and dispatches its entries.
func (p *Parser) parseFit() {
	if p.lastVtf == nil || !p.addressDiffValid {
		return
	}

	fitNode, fitOffset := p.findFit()
	if fitNode == nil {
		return
	}
	p.model.SetFixed(fitNode, true)

	body := fitNode.Body()
	raw := bytes.Mid(body, fitOffset, -1)
	table, err := fit.ParseTableFromPrefix(raw)
	if err != nil {
		p.msgErr(fitNode, fmt.Sprintf("parseFit: %v", err))
		return
	}

	header := table[0]
	fitSize := int(header.Size.Uint32()) * fit.EntrySize
	if header.IsChecksumValid() {
		var sum uint8
		for _, b := range bytes.Mid(raw, 0, fitSize) {
			sum += b
		}
		// The checksum byte participates; a valid table sums to zero.
		if sum != 0 {
			calculated := integrity.Checksum8(append(append([]byte{}, raw[:15]...), raw[16:fitSize]...))
			p.msg(fitNode, fmt.Sprintf("parseFit: invalid FIT table checksum %02Xh, should be %02Xh", header.Checksum, calculated))
		}
	}

	if header.Type() != fit.EntryTypeHeader {
		p.msg(fitNode, "parseFit: invalid FIT header type")
	}

	p.fitRows = append(p.fitRows, FITRow{
		Address:  string(fit.Signature),
		Size:     fmt.Sprintf("%08X", fitSize),
		Version:  fmt.Sprintf("%04X", uint16(header.Version)),
		Checksum: fmt.Sprintf("%02X", header.Checksum),
		Type:     header.Type().String(),
	})

	msgModifiedImageMayNotWork := false
	for i := 1; i < len(table) && i < int(header.Size.Uint32()); i++ {
		entry := table[i]
		var info string

		switch entry.Type() {
		case fit.EntryTypeHeader:
			p.msg(fitNode, "parseFit: second FIT header found, the table is damaged")
		case fit.EntryTypeEmpty:
			// Nothing to locate.
		case fit.EntryTypeMicrocode:
			info = p.parseFitMicrocode(&entry)
		case fit.EntryTypeBIOSACM:
			info = p.parseFitAcm(&entry)
			msgModifiedImageMayNotWork = true
		case fit.EntryTypeKeyManifest:
			info = p.parseFitKeyManifest(&entry)
			msgModifiedImageMayNotWork = true
		case fit.EntryTypeBootPolicy:
			info = p.parseFitBootPolicy(&entry)
			msgModifiedImageMayNotWork = true
		default:
			msgModifiedImageMayNotWork = true
		}

		p.fitRows = append(p.fitRows, FITRow{
			Address:  fmt.Sprintf("%08X", entry.Address.Pointer()),
			Size:     fmt.Sprintf("%08X", entry.Size.Uint32()),
			Version:  fmt.Sprintf("%04X", uint16(entry.Version)),
			Checksum: fmt.Sprintf("%02X", entry.Checksum),
			Type:     entry.Type().String(),
			Info:     info,
		})
	}

	if msgModifiedImageMayNotWork {
		p.msg(nil, "parseFit: opened image may not work after any modification")
	}

	// Boot Guard cross-checks.
	if p.bgAcmFound && (p.bgKeyManifest == nil || p.bgBootPolicy == nil) {
		p.msg(nil, "parseFit: BIOS ACM found, but Key Manifest or Boot Policy is missing")
	}
	if p.bgKeyManifest != nil && p.bgBootPolicy != nil && p.bgBpKeyHash != nil {
		if p.bgBpPubKey == nil {
			p.msg(p.bgBootPolicy, "parseFit: Boot Policy public key is missing, Key Manifest hash can not be checked")
		} else if digest, err := bootguard.ComputeHash(p.bgBpKeyHashAlg, p.bgBpPubKey); err != nil {
			p.msg(p.bgKeyManifest, fmt.Sprintf("parseFit: %v", err))
		} else if !stdbytes.Equal(digest, p.bgBpKeyHash) {
			p.msg(p.bgBootPolicy, "parseFit: Boot Policy key hash stored in Key Manifest differs from the hash of the Boot Policy public key")
		}
	}
}

// findFit scans tree bodies for the FIT signature and accepts the
// candidate referenced by the pointer at the end of the last VTF.
func (p *Parser) findFit() (*treemodel.Node, int) {
	lastVtfBody := p.lastVtf.Body()
	if len(lastVtfBody) < fit.PointerOffset {
		return nil, 0
	}
	fitPointer := uint64(binary.LittleEndian.Uint32(lastVtfBody[len(lastVtfBody)-fit.PointerOffset:]))

	return p.findFitRecursive(p.model.Root(), fitPointer)
}

// findFitRecursive probes the children before the node itself so the
// deepest body containing the referenced table wins.
func (p *Parser) findFitRecursive(node *treemodel.Node, fitPointer uint64) (*treemodel.Node, int) {
	for _, child := range node.Children() {
		if found, offset := p.findFitRecursive(child, fitPointer); found != nil {
			return found, offset
		}
	}

	if node == p.model.Root() || node.Compressed() {
		return nil, 0
	}

	body := node.Body()
	for offset := bytes.IndexOf(body, fit.Signature, 0); offset >= 0; offset = bytes.IndexOf(body, fit.Signature, offset+1) {
		fitAddress := p.addressDiff + node.Offset() + uint64(len(node.Header())) + uint64(offset)
		if fitAddress == fitPointer {
			p.msg(node, fmt.Sprintf("findFit: real FIT table found at physical address %08Xh", fitAddress))
			return node, offset
		}
		if len(node.Children()) == 0 {
			p.msg(node, "findFit: FIT table candidate found, but not referenced from the last VTF")
		}
	}

	return nil, 0
}

// entryTarget resolves a FIT entry's physical address to the bytes and
// the node it points into.
func (p *Parser) entryTarget(entry *fit.EntryHeaders) (*treemodel.Node, []byte) {
	address := entry.Address.Pointer()
	if address < p.addressDiff {
		return nil, nil
	}
	offset := address - p.addressDiff
	node := p.model.FindByOffset(offset)
	if node == nil {
		return nil, nil
	}
	if offset >= uint64(len(p.image)) {
		return node, nil
	}
	return node, p.image[offset:]
}

func (p *Parser) parseFitMicrocode(entry *fit.EntryHeaders) string {
	node, data := p.entryTarget(entry)
	if data == nil {
		p.msg(node, "parseFit: microcode entry points outside of the image")
		return "not found"
	}
	header, err := fit.ParseMicrocodeHeader(data)
	if err != nil {
		p.msg(node, fmt.Sprintf("parseFit: %v", err))
		return "invalid"
	}
	if int(header.GetTotalSize()) <= len(data) {
		if err := fit.VerifyMicrocodeChecksum(data[:header.GetTotalSize()]); err != nil {
			p.msg(node, fmt.Sprintf("parseFit: %v", err))
		}
	}
	return fmt.Sprintf("CPUID %08Xh, revision %Xh, date %s",
		header.ProcessorSignature, header.UpdateRevision, header.DateString())
}

func (p *Parser) parseFitAcm(entry *fit.EntryHeaders) string {
	node, data := p.entryTarget(entry)
	if data == nil {
		p.msg(node, "parseFit: BIOS ACM entry points outside of the image")
		return "not found"
	}
	header, err := bootguard.ParseACMHeader(data)
	if err != nil {
		p.msg(node, fmt.Sprintf("parseFit: %v", err))
		return "invalid"
	}
	p.bgAcmFound = true

	return fmt.Sprintf("SVN %d, date %s, size %Xh",
		header.AcmSvn, header.DateString(), header.ModuleSize*4)
}

func (p *Parser) parseFitKeyManifest(entry *fit.EntryHeaders) string {
	node, data := p.entryTarget(entry)
	if data == nil {
		p.msg(node, "parseFit: Key Manifest entry points outside of the image")
		return "not found"
	}
	km, err := bootguard.ParseKeyManifest(data)
	if err != nil {
		p.msg(node, fmt.Sprintf("parseFit: %v", err))
		return "invalid"
	}
	p.bgKeyManifest = node
	p.bgBpKeyHash = km.BpKeyHash.Digest()
	p.bgBpKeyHashAlg = km.BpKeyHash.HashAlgorithmID

	return fmt.Sprintf("version %d, SVN %d, ID %d, BP key hash %s",
		km.KmVersion, km.KmSvn, km.KmID, km.BpKeyHash.AlgorithmString())
}

func (p *Parser) parseFitBootPolicy(entry *fit.EntryHeaders) string {
	node, data := p.entryTarget(entry)
	if data == nil {
		p.msg(node, "parseFit: Boot Policy entry points outside of the image")
		return "not found"
	}
	bp, err := bootguard.ParseBootPolicy(data)
	if err != nil {
		p.msg(node, fmt.Sprintf("parseFit: %v", err))
		return "invalid"
	}
	p.bgBootPolicy = node

	// The IBB segments become protected ranges rooted at physical
	// addresses.
	for _, r := range bp.ProtectedRanges {
		p.protectedRanges = append(p.protectedRanges, protectedRange{
			Range:       r,
			Type:        protectedRangeIntelBootGuard,
			AlgorithmID: bp.IbbDigest.HashAlgorithmID,
			Hash:        bp.IbbDigest.Digest(),
		})
	}
	if bp.PubKey != nil {
		p.bgBpPubKey = bp.PubKey.Modulus[:]
	}

	return fmt.Sprintf("version %d, SVN %d, IBB segments %d",
		bp.Header.PMBPMVersion, bp.Header.BPSvn, len(bp.ProtectedRanges))
}
