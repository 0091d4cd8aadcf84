// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fit

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTable(t *testing.T, types []EntryType, withChecksum bool) []byte {
	t.Helper()
	var buf bytes.Buffer

	header := EntryHeaders{
		Address:                Address64(binary.LittleEndian.Uint64(Signature)),
		Version:                0x0100,
		TypeAndIsChecksumValid: TypeAndIsChecksumValid(EntryTypeHeader),
	}
	if withChecksum {
		header.TypeAndIsChecksumValid |= 0x80
	}
	header.Size.SetUint32(uint32(len(types) + 1))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &header))

	for i, typ := range types {
		entry := EntryHeaders{
			Address:                Address64(0xFFB00000 + uint64(i)*0x1000),
			Version:                0x0100,
			TypeAndIsChecksumValid: TypeAndIsChecksumValid(typ),
		}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &entry))
	}

	raw := buf.Bytes()
	if withChecksum {
		var sum uint8
		for _, b := range raw {
			sum += b
		}
		raw[15] = -sum
	}
	return raw
}

func TestParseTable(t *testing.T) {
	raw := buildTable(t, []EntryType{EntryTypeMicrocode, EntryTypeBIOSACM}, false)
	table, err := ParseTable(raw)
	require.NoError(t, err)
	require.Len(t, table, 3)
	require.Equal(t, EntryTypeHeader, table[0].Type())
	require.Equal(t, EntryTypeMicrocode, table[1].Type())
	require.Equal(t, EntryTypeBIOSACM, table[2].Type())
	require.Equal(t, uint32(3), table[0].Size.Uint32())
	require.NoError(t, table.Validate(raw))
}

func TestValidateChecksum(t *testing.T) {
	raw := buildTable(t, []EntryType{EntryTypeMicrocode}, true)
	table, err := ParseTable(raw)
	require.NoError(t, err)
	require.True(t, table[0].IsChecksumValid())
	require.NoError(t, table.Validate(raw))

	// Corrupt one byte; the checksum must catch it.
	raw[20] ^= 0xFF
	table, err = ParseTable(raw)
	require.NoError(t, err)
	require.Error(t, table.Validate(raw))
}

func TestValidateBadHeader(t *testing.T) {
	raw := buildTable(t, nil, false)
	// Destroy the signature.
	raw[0] = 'X'
	table, err := ParseTable(raw)
	require.NoError(t, err)
	require.Error(t, table.Validate(raw))
}

func TestFirst(t *testing.T) {
	raw := buildTable(t, []EntryType{EntryTypeMicrocode, EntryTypeKeyManifest}, false)
	table, err := ParseTable(raw)
	require.NoError(t, err)
	require.NotNil(t, table.First(EntryTypeKeyManifest))
	require.Nil(t, table.First(EntryTypeBootPolicy))
}

func TestMicrocodeHeader(t *testing.T) {
	h := MicrocodeHeader{
		HeaderVersion:      1,
		UpdateRevision:     0xB4,
		Date:               0x04212022,
		ProcessorSignature: 0x000906EA,
		LoaderRevision:     1,
		DataSize:           0x10,
		TotalSize:          0x40,
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	update := make([]byte, 0x40)
	copy(update, buf.Bytes())

	// Patch the checksum so the words sum to zero.
	var sum uint32
	for i := 0; i < len(update); i += 4 {
		sum += binary.LittleEndian.Uint32(update[i:])
	}
	binary.LittleEndian.PutUint32(update[16:], -(sum - h.Checksum))

	parsed, err := ParseMicrocodeHeader(update)
	require.NoError(t, err)
	require.Equal(t, uint32(0xB4), parsed.UpdateRevision)
	require.Equal(t, "2022-04-21", parsed.DateString())
	require.NoError(t, VerifyMicrocodeChecksum(update))

	update[63] ^= 0x01
	require.Error(t, VerifyMicrocodeChecksum(update))

	h.HeaderVersion = 2
	var bad bytes.Buffer
	require.NoError(t, binary.Write(&bad, binary.LittleEndian, &h))
	_, err = ParseMicrocodeHeader(bad.Bytes())
	require.Error(t, err)
}