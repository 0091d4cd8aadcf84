// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compression implements reading of the compressed bodies found
// in UEFI images: the EFI 1.1 and Tiano variants of the EFI Compression
// Algorithm, LZMA, the Intel-modified LZMA and the x86-filtered LZMAF86.
package compression

import (
	"errors"
	"fmt"

	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/bytes"
	"github.com/msi-ge62-2qd-apache-pro/UEFITool/pkg/guid"
)

// Compressor defines a single compression scheme (such as LZMA).
type Compressor interface {
	// Name is typically the name of a class.
	Name() string

	// Decode and Encode obey "x == Decode(Encode(x))".
	Decode(encodedData []byte) ([]byte, error)
	Encode(decodedData []byte) ([]byte, error)
}

// Well-known GUIDs for GUIDed sections containing compressed data.
var (
	LZMAGUID    = *guid.MustParse("EE4E5898-3914-4259-9D6E-DC7BD79403CF")
	LZMAX86GUID = *guid.MustParse("D42AE6BD-1352-4BFB-909A-CA72A6EAE889")
	TianoGUID   = *guid.MustParse("A31280AD-481E-41B6-95E8-127F4C984779")
)

// CompressorFromGUID returns a Compressor for the corresponding GUIDed
// section, or nil when the GUID carries no known compression scheme.
func CompressorFromGUID(g *guid.GUID) Compressor {
	switch *g {
	case LZMAGUID:
		return &LZMA{}
	case LZMAX86GUID:
		return &LZMAX86{&LZMA{}}
	}
	return nil
}

// Algorithm identifies the compression scheme of a section body.
type Algorithm uint8

// Compression algorithms.
const (
	AlgorithmUnknown Algorithm = iota
	AlgorithmNone
	AlgorithmEFI11
	AlgorithmTiano
	AlgorithmUndecided
	AlgorithmLZMA
	AlgorithmIntelLZMA
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "None"
	case AlgorithmEFI11:
		return "EFI 1.1"
	case AlgorithmTiano:
		return "Tiano"
	case AlgorithmUndecided:
		return "Undecided"
	case AlgorithmLZMA:
		return "LZMA"
	case AlgorithmIntelLZMA:
		return "Intel modified LZMA"
	}
	return "Unknown"
}

// Compression type bytes of an EFI_COMPRESSION_SECTION.
const (
	NotCompressed         uint8 = 0x00
	StandardCompression   uint8 = 0x01
	CustomizedCompression uint8 = 0x02
)

// ErrDecompressionFailed is returned when no algorithm could decompress
// the body.
var ErrDecompressionFailed = errors.New("decompression failed")

// Decompress expands the body of a compression section according to its
// compression type byte.
//
// Standard compression is ambiguous: the same type byte covers both the
// Tiano and the EFI 1.1 variant. When both decoders succeed with
// different outputs, the algorithm is reported as AlgorithmUndecided,
// decompressed holds the Tiano output and efiDecompressed the EFI 1.1
// output; the caller disambiguates by pre-parsing both.
func Decompress(data []byte, compressionType uint8) (algorithm Algorithm, decompressed, efiDecompressed []byte, err error) {
	switch compressionType {
	case NotCompressed:
		return AlgorithmNone, data, nil, nil

	case StandardCompression:
		tiano, tianoErr := TianoDecompress(data)
		efi, efiErr := EFI11Decompress(data)
		switch {
		case tianoErr == nil && efiErr == nil:
			if len(tiano) == len(efi) && bytes.StartsWith(tiano, efi) {
				return AlgorithmTiano, tiano, nil, nil
			}
			return AlgorithmUndecided, tiano, efi, nil
		case tianoErr == nil:
			return AlgorithmTiano, tiano, nil, nil
		case efiErr == nil:
			return AlgorithmEFI11, efi, nil, nil
		default:
			return AlgorithmUnknown, nil, nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, tianoErr)
		}

	case CustomizedCompression:
		lzma := &LZMA{}
		if d, lzmaErr := lzma.Decode(data); lzmaErr == nil {
			return AlgorithmLZMA, d, nil, nil
		}
		// Intel modified LZMA: a stray section header precedes the
		// LZMA stream.
		if d, lzmaErr := lzma.Decode(bytes.Mid(data, 4, -1)); lzmaErr == nil {
			return AlgorithmIntelLZMA, d, nil, nil
		}
		return AlgorithmUnknown, nil, nil, fmt.Errorf("%w: customized compression is neither LZMA nor Intel modified LZMA", ErrDecompressionFailed)

	default:
		return AlgorithmUnknown, nil, nil, fmt.Errorf("%w: unknown compression type %02Xh", ErrDecompressionFailed, compressionType)
	}
}
