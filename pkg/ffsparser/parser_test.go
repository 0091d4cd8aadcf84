// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffsparser

import (
	stdbytes "bytes"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bootguard"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/compression"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/fit"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/integrity"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/treemodel"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/uefi"
)

var testFileGUID = *guid.MustParse("DECAFBAD-1234-5678-90AB-CDEF01234567")

// buildFile assembles a checksummed FFSv2 file.
func buildFile(name guid.GUID, fileType uefi.FVFileType, body []byte) []byte {
	header := make([]byte, uefi.FileHeaderSize)
	copy(header, name[:])
	header[18] = uint8(fileType)
	header[19] = 0 // attributes
	size := uefi.Write3Size(uint32(uefi.FileHeaderSize + len(body)))
	copy(header[20:23], size[:])
	header[23] = 0xF8 // state

	// Header checksum covers everything but the state byte, with both
	// integrity bytes zeroed.
	header[16] = integrity.Checksum8(header[:uefi.FileHeaderSize-1])
	// Without the CHECKSUM attribute the data checksum is fixed.
	header[17] = uefi.FFSFixedChecksum

	return append(header, body...)
}

// buildVolume assembles an FFSv2 volume of fvLen bytes holding the
// files back to back from the start of the body.
func buildVolume(fvLen int, files [][]byte) []byte {
	const headerLen = 0x48
	volume := stdbytes.Repeat([]byte{0xFF}, fvLen)
	for i := 0; i < 16; i++ {
		volume[i] = 0 // ZeroVector
	}
	copy(volume[16:32], uefi.FFS2GUID[:])
	binary.LittleEndian.PutUint64(volume[32:], uint64(fvLen))
	copy(volume[40:44], uefi.VolumeSignature)
	binary.LittleEndian.PutUint32(volume[44:], uefi.FVBErasePolarity)
	binary.LittleEndian.PutUint16(volume[48:], headerLen)
	binary.LittleEndian.PutUint16(volume[50:], 0) // checksum, fixed below
	binary.LittleEndian.PutUint16(volume[52:], 0) // ext header offset
	volume[54] = 0                                // reserved
	volume[55] = 2                                // revision
	// One block spanning the whole volume plus the terminator.
	binary.LittleEndian.PutUint32(volume[56:], 1)
	binary.LittleEndian.PutUint32(volume[60:], uint32(fvLen))
	binary.LittleEndian.PutUint32(volume[64:], 0)
	binary.LittleEndian.PutUint32(volume[68:], 0)

	checksum, _ := integrity.Checksum16(volume[:headerLen])
	binary.LittleEndian.PutUint16(volume[50:], checksum)

	offset := headerLen
	for _, file := range files {
		copy(volume[offset:], file)
		offset = int(uefi.Align8(uint32(offset + len(file))))
	}
	return volume
}

func section(sectionType uefi.SectionType, extra, body []byte) []byte {
	size := uefi.SectionHeaderSize + len(extra) + len(body)
	s := make([]byte, 0, size)
	s = append(s, uint8(size), uint8(size>>8), uint8(size>>16), uint8(sectionType))
	s = append(s, extra...)
	return append(s, body...)
}

func utf16String(s string) []byte {
	var buf []byte
	for _, r := range s {
		buf = append(buf, byte(r), byte(r>>8))
	}
	return append(buf, 0, 0)
}

func TestPureCapsule(t *testing.T) {
	buffer := make([]byte, uefi.CapsuleHeaderSize)
	copy(buffer, uefi.EFICapsuleGUID[:])
	binary.LittleEndian.PutUint32(buffer[16:], 0x1C) // HeaderSize
	binary.LittleEndian.PutUint32(buffer[20:], 0)    // Flags
	binary.LittleEndian.PutUint32(buffer[24:], 0x1C) // CapsuleImageSize

	p := New()
	err := p.Parse(buffer)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func buildEmptyIntelImage() []byte {
	image := stdbytes.Repeat([]byte{0xFF}, 0x2000)
	binary.LittleEndian.PutUint32(image[16:], uefi.FlashDescriptorSignature)
	// FLMAP0: component base 0x03, region base 0x04.
	binary.LittleEndian.PutUint32(image[20:], 0x03|0x04<<16|0x01<<24)
	// FLMAP1: master base 0x06.
	binary.LittleEndian.PutUint32(image[24:], 0x06)
	binary.LittleEndian.PutUint32(image[28:], 0)
	// Component section: read clock frequency 17 MHz selects the v2
	// layout.
	image[0x30] = 0
	image[0x31] = 0
	image[0x32] = uefi.FlashFrequency17MHz << 1
	// Region section: the descriptor pair is ignored, BIOS spans
	// [0x1000, 0x2000).
	binary.LittleEndian.PutUint16(image[0x40:], 0)
	binary.LittleEndian.PutUint16(image[0x42:], 0)
	binary.LittleEndian.PutUint16(image[0x44:], 1) // BIOS base
	binary.LittleEndian.PutUint16(image[0x46:], 1) // BIOS limit
	// Remaining region pairs stay invalid.
	for off := 0x48; off < 0x40+uefi.RegionSectionSize; off += 2 {
		binary.LittleEndian.PutUint16(image[off:], 0)
	}
	return image
}

func TestEmptyIntelImage(t *testing.T) {
	p := New()
	require.NoError(t, p.Parse(buildEmptyIntelImage()))

	root := p.Model().Root()
	require.Len(t, root.Children(), 1)
	imageNode := root.Children()[0]
	require.Equal(t, treemodel.TypeImage, imageNode.Type())
	require.Equal(t, treemodel.SubtypeIntelImage, imageNode.Subtype())

	children := imageNode.Children()
	require.Len(t, children, 2)
	require.Equal(t, treemodel.SubtypeDescriptorRegion, children[0].Subtype())
	require.Equal(t, treemodel.SubtypeBiosRegion, children[1].Subtype())
	require.Empty(t, children[1].Children())

	// The only diagnostic is the global note about the missing VTF.
	require.Len(t, p.Messages(), 1)
	require.Nil(t, p.Messages()[0].Node)
}

func buildPE32Image() []byte {
	dos := make([]byte, uefi.ImageDOSHeaderSize)
	binary.LittleEndian.PutUint16(dos[0:], uefi.ImageDOSSignature)
	binary.LittleEndian.PutUint32(dos[60:], uefi.ImageDOSHeaderSize) // e_lfanew

	pe := make([]byte, 4+20+76)
	binary.LittleEndian.PutUint32(pe[0:], uefi.ImagePESignature)
	binary.LittleEndian.PutUint16(pe[4:], uefi.MachineI386)
	binary.LittleEndian.PutUint16(pe[6:], 1)  // sections
	binary.LittleEndian.PutUint16(pe[20:], 76) // optional header size
	binary.LittleEndian.PutUint16(pe[24:], uefi.OptionalHeaderPE32Magic)

	return append(dos, pe...)
}

func TestVolumeWithPE32File(t *testing.T) {
	peSection := section(uefi.SectionTypePE32, nil, buildPE32Image())
	file := buildFile(testFileGUID, uefi.FVFileTypeDriver, peSection)
	image := buildVolume(0x1000, [][]byte{file})

	p := New()
	require.NoError(t, p.Parse(image))

	root := p.Model().Root()
	require.Len(t, root.Children(), 1)
	uefiImage := root.Children()[0]
	require.Equal(t, treemodel.SubtypeUefiImage, uefiImage.Subtype())
	require.Len(t, uefiImage.Children(), 1)

	volume := uefiImage.Children()[0]
	require.Equal(t, treemodel.TypeVolume, volume.Type())
	require.Equal(t, treemodel.SubtypeFfs2Volume, volume.Subtype())

	require.Len(t, volume.Children(), 2)
	fileNode := volume.Children()[0]
	require.Equal(t, treemodel.TypeFile, fileNode.Type())
	require.Equal(t, uint8(uefi.FVFileTypeDriver), fileNode.Subtype())
	require.Equal(t, treemodel.TypeFreeSpace, volume.Children()[1].Type())

	require.Len(t, fileNode.Children(), 1)
	sectionNode := fileNode.Children()[0]
	require.Equal(t, treemodel.TypeSection, sectionNode.Type())
	require.Equal(t, uint8(uefi.SectionTypePE32), sectionNode.Subtype())
	require.Contains(t, sectionNode.Info(), "Machine type: x86")

	// Everything is uncompressed, so leaf sizes tile the image.
	for _, message := range p.Messages() {
		require.NotContains(t, message.Text, "checksum")
	}
}

func TestVolumeHeaderLengthBoundary(t *testing.T) {
	// HeaderLength equal to the whole volume length is accepted.
	image := buildVolume(0x1000, nil)
	binary.LittleEndian.PutUint16(image[48:], 0x1000)
	binary.LittleEndian.PutUint16(image[50:], 0)
	checksum, err := integrity.Checksum16(image[:0x1000])
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(image[50:], checksum)

	p := New()
	require.NoError(t, p.Parse(image))
	volume := p.Model().Root().Children()[0].Children()[0]
	require.Equal(t, treemodel.TypeVolume, volume.Type())
	require.Empty(t, volume.Body())

	// One more byte of declared header overruns the volume.
	image = buildVolume(0x1000, nil)
	binary.LittleEndian.PutUint16(image[48:], 0x1001)

	p = New()
	require.NoError(t, p.Parse(image))
	found := false
	for _, message := range p.Messages() {
		if strings.Contains(message.Text, "volume header overlaps the end of data") {
			found = true
		}
	}
	require.True(t, found)
}

func TestLZMACompressedUISection(t *testing.T) {
	uiSection := section(uefi.SectionTypeUserInterface, nil, utf16String("Test"))

	encoded, err := (&compression.LZMA{}).Encode(uiSection)
	require.NoError(t, err)

	extra := make([]byte, 5)
	binary.LittleEndian.PutUint32(extra, uint32(len(uiSection))) // UncompressedLength
	extra[4] = compression.CustomizedCompression
	compSection := section(uefi.SectionTypeCompression, extra, encoded)

	file := buildFile(testFileGUID, uefi.FVFileTypeDriver, compSection)
	image := buildVolume(0x1000, [][]byte{file})

	p := New()
	require.NoError(t, p.Parse(image))

	volume := p.Model().Root().Children()[0].Children()[0]
	fileNode := volume.Children()[0]
	require.Len(t, fileNode.Children(), 1)

	compNode := fileNode.Children()[0]
	require.Equal(t, uint8(uefi.SectionTypeCompression), compNode.Subtype())
	require.True(t, compNode.Compressed())
	require.Contains(t, compNode.Info(), "Compression algorithm: LZMA")

	require.Len(t, compNode.Children(), 1)
	uiNode := compNode.Children()[0]
	require.Equal(t, uint8(uefi.SectionTypeUserInterface), uiNode.Subtype())
	require.True(t, uiNode.Compressed())
	require.Contains(t, uiNode.Info(), "Text: Test")

	// The UI string renames the parent file.
	require.Equal(t, "Test", fileNode.Text())
}

func TestTruncatedVolume(t *testing.T) {
	image := buildVolume(0x1000, nil)
	// Declare twice the available bytes.
	binary.LittleEndian.PutUint64(image[32:], 0x2000)
	binary.LittleEndian.PutUint32(image[60:], 0x2000)

	p := New()
	require.NoError(t, p.Parse(image))

	uefiImage := p.Model().Root().Children()[0]
	require.Len(t, uefiImage.Children(), 1)
	require.Equal(t, treemodel.TypePadding, uefiImage.Children()[0].Type())

	found := false
	for _, message := range p.Messages() {
		if strings.Contains(message.Text, "one of volumes inside overlaps the end of data") {
			found = true
		}
	}
	require.True(t, found)
}

// buildBootGuardImage builds a raw image with a FIT referenced from a
// VTF and one Boot Guard boot policy whose IBB digest is wrong.
func buildBootGuardImage(t *testing.T) []byte {
	t.Helper()
	const (
		fvLen       = 0x1000
		addressDiff = 0x100000000 - fvLen
	)

	// Boot policy manifest with a single IBB segment covering
	// [0x500, 0x600) of the image, declaring a bogus digest.
	var bpBuf stdbytes.Buffer
	bpHeader := bootguard.BootPolicyHeader{Version: 0x10}
	copy(bpHeader.Tag[:], bootguard.BootPolicyTag)
	require.NoError(t, binary.Write(&bpBuf, binary.LittleEndian, &bpHeader))
	ibb := bootguard.IBBElement{
		Version:      0x10,
		SegmentCount: 1,
		Digest: bootguard.HashStructure{
			HashAlgorithmID: bootguard.AlgSHA256,
			Size:            32,
		},
	}
	copy(ibb.Tag[:], bootguard.IBBElementTag)
	copy(ibb.Digest.HashBuffer[:], stdbytes.Repeat([]byte{0xBA}, 32))
	require.NoError(t, binary.Write(&bpBuf, binary.LittleEndian, &ibb))
	seg := bootguard.IBBSegment{Base: uint32(addressDiff + 0x500), Size: 0x100}
	require.NoError(t, binary.Write(&bpBuf, binary.LittleEndian, &seg))
	sig := bootguard.SignatureElement{Version: 0x10}
	copy(sig.Tag[:], bootguard.SignatureElementTag)
	require.NoError(t, binary.Write(&bpBuf, binary.LittleEndian, &sig))

	// FIT with a header, the boot policy entry and an empty entry.
	var fitBuf stdbytes.Buffer
	header := fit.EntryHeaders{
		Address:                fit.Address64(binary.LittleEndian.Uint64(fit.Signature)),
		Version:                0x0100,
		TypeAndIsChecksumValid: fit.TypeAndIsChecksumValid(fit.EntryTypeHeader),
	}
	header.Size.SetUint32(3)
	require.NoError(t, binary.Write(&fitBuf, binary.LittleEndian, &header))
	// The boot policy lives right after the FIT inside the same file
	// body, which starts at 0x48 + 0x18 = 0x60.
	bpEntry := fit.EntryHeaders{
		Address:                fit.Address64(addressDiff + 0x60 + 48),
		Version:                0x0100,
		TypeAndIsChecksumValid: fit.TypeAndIsChecksumValid(fit.EntryTypeBootPolicy),
	}
	bpEntry.Size.SetUint32(uint32(bpBuf.Len()))
	require.NoError(t, binary.Write(&fitBuf, binary.LittleEndian, &bpEntry))
	empty := fit.EntryHeaders{
		TypeAndIsChecksumValid: fit.TypeAndIsChecksumValid(fit.EntryTypeEmpty),
	}
	require.NoError(t, binary.Write(&fitBuf, binary.LittleEndian, &empty))
	require.Equal(t, 48, fitBuf.Len())

	fitFileBody := append(fitBuf.Bytes(), bpBuf.Bytes()...)
	fitFile := buildFile(testFileGUID, uefi.FVFileTypeRaw, fitFileBody)

	// The VTF ends exactly at the volume end and carries the FIT
	// pointer 0x40 bytes before its end.
	fitFileEnd := 0x48 + len(fitFile)
	vtfOffset := int(uefi.Align8(uint32(fitFileEnd)))
	vtfSize := fvLen - vtfOffset
	vtfBody := stdbytes.Repeat([]byte{0xFF}, vtfSize-uefi.FileHeaderSize)
	binary.LittleEndian.PutUint32(vtfBody[len(vtfBody)-fit.PointerOffset:], uint32(addressDiff+0x60))
	vtf := buildFile(*uefi.VTFGUID, uefi.FVFileTypeRaw, vtfBody)

	return buildVolume(fvLen, [][]byte{fitFile, vtf})
}

func TestBootGuardMismatch(t *testing.T) {
	image := buildBootGuardImage(t)

	p := New()
	require.NoError(t, p.Parse(image))

	rows := p.FITTable()
	require.Len(t, rows, 3)
	require.Equal(t, "BG Boot Policy", rows[1].Type)

	found := false
	for _, message := range p.Messages() {
		if strings.Contains(message.Text, "BG-protected ranges hash mismatch") {
			found = true
		}
	}
	require.True(t, found)

	// The nodes covering the protected range carry the violation
	// marking.
	marked := 0
	p.Model().Walk(func(node *treemodel.Node) bool {
		if node.Marking() == treemodel.MarkingViolatesRange {
			marked++
		}
		return true
	})
	require.NotZero(t, marked)

	// Ensure the digest really was a mismatch: hashing the range with
	// the right bytes would produce a different value.
	rangeDigest := sha256.Sum256(image[0x500:0x600])
	require.NotEqual(t, stdbytes.Repeat([]byte{0xBA}, 32), rangeDigest[:])
}

func TestFixedPropagationFromVTF(t *testing.T) {
	image := buildBootGuardImage(t)

	p := New()
	require.NoError(t, p.Parse(image))

	// The FIT-containing file was pinned, which propagates upward.
	// Volumes are created fixed, so the file itself shows the pinning.
	volume := p.Model().Root().Children()[0].Children()[0]
	require.True(t, volume.Fixed())
	require.True(t, volume.Children()[0].Fixed())
}
