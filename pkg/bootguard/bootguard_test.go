// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootguard

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKeyManifest(t *testing.T) {
	km := KeyManifest{
		Version:   0x10,
		KmVersion: 0x01,
		KmSvn:     0x00,
		KmID:      0x01,
		BpKeyHash: HashStructure{HashAlgorithmID: AlgSHA256, Size: 32},
	}
	copy(km.Tag[:], KeyManifestTag)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &km))

	parsed, err := ParseKeyManifest(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), parsed.KmID)
	require.Equal(t, "SHA256", parsed.BpKeyHash.AlgorithmString())

	_, err = ParseKeyManifest(buf.Bytes()[:8])
	require.Error(t, err)

	bad := buf.Bytes()
	bad[0] = 'X'
	_, err = ParseKeyManifest(bad)
	require.Error(t, err)
}

func buildBootPolicy(t *testing.T, segments []IBBSegment, digest [32]uint8) []byte {
	t.Helper()
	var buf bytes.Buffer

	header := BootPolicyHeader{Version: 0x10}
	copy(header.Tag[:], BootPolicyTag)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &header))

	ibb := IBBElement{
		Version:      0x10,
		SegmentCount: uint8(len(segments)),
		Digest:       HashStructure{HashAlgorithmID: AlgSHA256, Size: 32, HashBuffer: digest},
	}
	copy(ibb.Tag[:], IBBElementTag)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &ibb))
	for _, seg := range segments {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &seg))
	}

	sig := SignatureElement{Version: 0x10}
	copy(sig.Tag[:], SignatureElementTag)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &sig))

	return buf.Bytes()
}

func TestParseBootPolicy(t *testing.T) {
	digest := sha256.Sum256([]byte("initial boot block"))
	segments := []IBBSegment{
		{Base: 0xFFF80000, Size: 0x40000},
		{Base: 0xFFFC0000, Size: 0x3FFC0},
		{Base: 0xDEAD0000, Size: 0}, // zero-length segments are dropped
	}
	bp, err := ParseBootPolicy(buildBootPolicy(t, segments, digest))
	require.NoError(t, err)
	require.True(t, bp.HasSignatureElement)
	require.Len(t, bp.ProtectedRanges, 2)
	require.Equal(t, uint64(0xFFF80000), bp.ProtectedRanges[0].Offset)
	require.Equal(t, uint64(0x40000), bp.ProtectedRanges[0].Length)
	require.Equal(t, digest[:], bp.IbbDigest.Digest())
}

func TestParseBootPolicyBadTag(t *testing.T) {
	raw := buildBootPolicy(t, nil, [32]uint8{})
	raw[0] = 'X'
	_, err := ParseBootPolicy(raw)
	require.Error(t, err)
}

func TestParseACMHeader(t *testing.T) {
	acm := ACMHeader{
		ModuleType:   ACMModuleType,
		ModuleVendor: ACMModuleVendorIntel,
		Date:         0x20220421,
		ModuleSize:   0x4000 >> 2,
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &acm))

	parsed, err := ParseACMHeader(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "2022-04-21", parsed.DateString())

	acm.ModuleVendor = 0x1234
	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &acm))
	_, err = ParseACMHeader(buf.Bytes())
	require.Error(t, err)
}

func TestComputeHash(t *testing.T) {
	data := []byte("protected range contents")
	digest, err := ComputeHash(AlgSHA256, data)
	require.NoError(t, err)
	expected := sha256.Sum256(data)
	require.Equal(t, expected[:], digest)

	sm3Digest, err := ComputeHash(AlgSM3, data)
	require.NoError(t, err)
	require.Len(t, sm3Digest, 32)
	require.NotEqual(t, digest, sm3Digest)

	_, err = ComputeHash(0x7777, data)
	require.Error(t, err)
}
