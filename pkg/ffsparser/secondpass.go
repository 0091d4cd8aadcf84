// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	"fmt"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

// addOffsetsRecursive annotates every node with its offset and its
// compression and fixed state. Offsets are only meaningful outside of
// decompressed bodies.
func (p *Parser) addOffsetsRecursive(node *treemodel.Node) {
	if node == nil {
		return
	}

	if node != p.model.Root() {
		if !node.Compressed() || (node.Parent() != nil && !node.Parent().Compressed()) {
			p.model.AddInfo(node, fmt.Sprintf("Offset: %Xh\n", node.Offset()), true)
		}
		if node.Compressed() {
			p.model.AddInfo(node, "\nCompressed: Yes", false)
		} else {
			p.model.AddInfo(node, "\nCompressed: No", false)
		}
		if node.Fixed() {
			p.model.AddInfo(node, "\nFixed: Yes", false)
		} else {
			p.model.AddInfo(node, "\nFixed: No", false)
		}
	}

	for _, child := range node.Children() {
		p.addOffsetsRecursive(child)
	}
}

// performSecondPass computes the physical address difference from the
// last VTF and annotates the whole tree with memory addresses.
func (p *Parser) performSecondPass() {
	if p.lastVtf == nil {
		return
	}

	// A compressed VTF cannot anchor physical addresses.
	if p.lastVtf.Compressed() {
		p.msg(p.lastVtf, "performSecondPass: the last VTF appears inside compressed item, the image may be damaged")
		return
	}

	// The last byte of the last VTF maps to 0xFFFFFFFF.
	vtfSize := p.lastVtf.Size()
	p.addressDiff = 0xFFFFFFFF - p.lastVtf.Offset() - vtfSize + 1
	p.addressDiffValid = true

	p.addMemoryAddressesRecursive(p.model.Root())
}

// addMemoryAddressesRecursive annotates one sub-tree.
func (p *Parser) addMemoryAddressesRecursive(node *treemodel.Node) {
	if node == nil {
		return
	}

	if node != p.model.Root() && !node.Compressed() {
		if p.addressDiff+node.Offset() <= 0xFFFFFFFF {
			address := p.addressDiff + node.Offset()
			headerSize := uint64(len(node.Header()))
			if headerSize != 0 {
				p.model.AddInfo(node, fmt.Sprintf("\nHeader memory address: %08Xh", address), false)
				p.model.AddInfo(node, fmt.Sprintf("\nData memory address: %08Xh", address+headerSize), false)
			} else {
				p.model.AddInfo(node, fmt.Sprintf("\nMemory address: %08Xh", address), false)
			}

			// Uncompressed TE images are classified by how their image
			// base relates to the mapped address.
			if node.Type() == treemodel.TypeSection && uefi.SectionType(node.Subtype()) == uefi.SectionTypeTE {
				if teData, ok := node.ParsingData().(*treemodel.TeSectionData); ok {
					dataAddress := address + headerSize
					switch {
					case teData.ImageBase == dataAddress:
						teData.BaseType = treemodel.TeBaseOriginal
					case teData.AdjustedImageBase == dataAddress:
						teData.BaseType = treemodel.TeBaseAdjusted
					case oneBitDifference(teData.ImageBase, dataAddress):
						teData.BaseType = treemodel.TeBaseOriginal
					case oneBitDifference(teData.AdjustedImageBase, dataAddress):
						teData.BaseType = treemodel.TeBaseAdjusted
					default:
						teData.BaseType = treemodel.TeBaseOther
						p.msg(node, "addMemoryAddressesRecursive: image base is neither original nor adjusted, it's likely a part of backup PEI volume or DXE volume, but can also be damaged")
					}
					p.model.AddInfo(node, fmt.Sprintf("\nBase type: %s", teData.BaseType), false)
				}
			}
		}
	}

	for _, child := range node.Children() {
		p.addMemoryAddressesRecursive(child)
	}
}

// oneBitDifference tolerates a single flipped bit between a stored
// image base and the computed address.
func oneBitDifference(a, b uint64) bool {
	diff := a ^ b
	return diff != 0 && diff&(diff-1) == 0
}
