// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compression

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decoder for the EFI Compression Algorithm, shared between the EFI 1.1
// and the Tiano variants. The two differ only in the number of position
// bits: 4 for EFI 1.1, 5 for Tiano.

const (
	bitBufSiz = 32
	maxMatch  = 256
	threshold = 3
	codeBit   = 16
	nc        = 0xff + maxMatch + 2 - threshold
	cBit      = 9
	maxPBit   = 5
	tBit      = 5
	maxNP     = (1 << maxPBit) - 1
	nt        = codeBit + 3
	// NPT is max(NT, MAXNP).
	npt = maxNP
)

var errBadCompressedData = errors.New("compressed data is corrupt")

type scratchData struct {
	srcBase []byte
	dstBase []byte

	outBuf    uint32
	inBuf     uint32
	bitCount  uint16
	bitBuf    uint32
	subBitBuf uint32
	blockSize uint16
	compSize  uint32
	origSize  uint32

	badTableFlag bool

	left    [2*nc - 1]uint16
	right   [2*nc - 1]uint16
	cLen    [nc]uint8
	ptLen   [npt]uint8
	cTable  [4096]uint16
	ptTable [256]uint16

	// pBit is the number of position bits: 4 for EFI 1.1, 5 for Tiano.
	pBit uint8
}

// fillBuf shifts bitBuf numOfBits left and refills from the source.
func (sd *scratchData) fillBuf(numOfBits uint16) {
	sd.bitBuf <<= numOfBits
	for numOfBits > sd.bitCount {
		numOfBits -= sd.bitCount
		sd.bitBuf |= sd.subBitBuf << numOfBits

		if sd.compSize > 0 {
			sd.compSize--
			sd.subBitBuf = uint32(sd.srcBase[sd.inBuf])
			sd.inBuf++
			sd.bitCount = 8
		} else {
			sd.subBitBuf = 0
			sd.bitCount = 8
		}
	}
	sd.bitCount -= numOfBits
	sd.bitBuf |= sd.subBitBuf >> sd.bitCount
}

// getBits returns the next numOfBits bits and advances.
func (sd *scratchData) getBits(numOfBits uint16) uint32 {
	outBits := sd.bitBuf >> (bitBufSiz - numOfBits)
	sd.fillBuf(numOfBits)
	return outBits
}

// makeTable builds the canonical Huffman decode table for numOfChar
// symbols with the given code lengths.
func (sd *scratchData) makeTable(numOfChar uint16, bitLen []uint8, tableBits uint16, table []uint16) error {
	var count [17]uint16
	var weight [17]uint16
	var start [18]uint16

	for i := uint16(0); i < numOfChar; i++ {
		if bitLen[i] > 16 {
			return errBadCompressedData
		}
		count[bitLen[i]]++
	}

	for i := uint16(1); i <= 16; i++ {
		start[i+1] = start[i] + (count[i] << (16 - i))
	}
	if start[17] != 0 {
		return errBadCompressedData
	}

	juBits := 16 - tableBits
	for i := uint16(1); i <= tableBits; i++ {
		start[i] >>= juBits
		weight[i] = 1 << (tableBits - i)
	}
	for i := tableBits + 1; i <= 16; i++ {
		weight[i] = 1 << (16 - i)
	}

	maxTableLength := uint16(1) << tableBits
	index := start[tableBits+1] >> juBits
	if index != 0 {
		for i := index; i < maxTableLength; i++ {
			table[i] = 0
		}
	}

	avail := numOfChar
	mask := uint16(1) << (15 - tableBits)

	for char := uint16(0); char < numOfChar; char++ {
		length := uint16(bitLen[char])
		if length == 0 || length >= 17 {
			continue
		}
		nextCode := start[length] + weight[length]

		if length <= tableBits {
			for i := start[length]; i < nextCode; i++ {
				if i >= maxTableLength {
					return errBadCompressedData
				}
				table[i] = char
			}
		} else {
			index3 := start[length]
			// Walk the binary trie stored in left/right, allocating
			// internal nodes as needed.
			node := &table[index3>>juBits]
			for i := length - tableBits; i > 0; i-- {
				if *node == 0 {
					sd.left[avail] = 0
					sd.right[avail] = 0
					*node = avail
					avail++
				}
				if *node < 2*nc-1 {
					if index3&mask != 0 {
						node = &sd.right[*node]
					} else {
						node = &sd.left[*node]
					}
				}
				index3 <<= 1
			}
			*node = char
		}
		start[length] = nextCode
	}
	return nil
}

// decodeP decodes a match position.
func (sd *scratchData) decodeP() uint32 {
	val := sd.ptTable[sd.bitBuf>>(bitBufSiz-8)]
	if val >= maxNP {
		mask := uint32(1 << (bitBufSiz - 1 - 8))
		for val >= maxNP {
			if sd.bitBuf&mask != 0 {
				val = sd.right[val]
			} else {
				val = sd.left[val]
			}
			mask >>= 1
		}
	}
	sd.fillBuf(uint16(sd.ptLen[val]))

	pos := uint32(val)
	if val > 1 {
		pos = uint32(1)<<(val-1) + sd.getBits(val-1)
	}
	return pos
}

// readPTLen reads the code lengths for the position set or the extra
// set. special is the index after which a 2-bit count of zero lengths
// follows, or a negative value for none.
func (sd *scratchData) readPTLen(nn, nbit uint16, special int) error {
	number := uint16(sd.getBits(nbit))
	if number == 0 {
		charC := uint16(sd.getBits(nbit))
		for i := range sd.ptTable {
			sd.ptTable[i] = charC
		}
		for i := uint16(0); i < nn; i++ {
			sd.ptLen[i] = 0
		}
		return nil
	}

	index := uint16(0)
	for index < number && index < npt {
		charC := uint16(sd.bitBuf >> (bitBufSiz - 3))
		if charC == 7 {
			mask := uint32(1 << (bitBufSiz - 1 - 3))
			for mask&sd.bitBuf != 0 {
				mask >>= 1
				charC++
			}
		}
		if charC < 7 {
			sd.fillBuf(3)
		} else {
			sd.fillBuf(charC - 3)
		}
		sd.ptLen[index] = uint8(charC)
		index++

		if int(index) == special {
			charC = uint16(sd.getBits(2))
			for int16(charC) > 0 && index < npt {
				sd.ptLen[index] = 0
				index++
				charC--
			}
		}
	}
	for index < nn && index < npt {
		sd.ptLen[index] = 0
		index++
	}
	return sd.makeTable(nn, sd.ptLen[:], 8, sd.ptTable[:])
}

// readCLen reads the character code lengths.
func (sd *scratchData) readCLen() {
	number := uint16(sd.getBits(cBit))
	if number == 0 {
		charC := uint16(sd.getBits(cBit))
		for i := 0; i < nc; i++ {
			sd.cLen[i] = 0
		}
		for i := range sd.cTable {
			sd.cTable[i] = charC
		}
		return
	}

	index := uint16(0)
	for index < number && index < nc {
		charC := sd.ptTable[sd.bitBuf>>(bitBufSiz-8)]
		if charC >= nt {
			mask := uint32(1 << (bitBufSiz - 1 - 8))
			for charC >= nt {
				if mask&sd.bitBuf != 0 {
					charC = sd.right[charC]
				} else {
					charC = sd.left[charC]
				}
				mask >>= 1
			}
		}
		sd.fillBuf(uint16(sd.ptLen[charC]))

		if charC <= 2 {
			if charC == 0 {
				charC = 1
			} else if charC == 1 {
				charC = uint16(sd.getBits(4)) + 3
			} else {
				charC = uint16(sd.getBits(cBit)) + 20
			}
			for int16(charC) > 0 && index < nc {
				sd.cLen[index] = 0
				index++
				charC--
			}
		} else {
			sd.cLen[index] = uint8(charC - 2)
			index++
		}
	}
	for index < nc {
		sd.cLen[index] = 0
		index++
	}
	if err := sd.makeTable(nc, sd.cLen[:], 12, sd.cTable[:]); err != nil {
		sd.badTableFlag = true
	}
}

// decodeC decodes one character or match-length symbol.
func (sd *scratchData) decodeC() uint16 {
	if sd.blockSize == 0 {
		// Starting a new block.
		sd.blockSize = uint16(sd.getBits(16))
		if err := sd.readPTLen(nt, tBit, 3); err != nil {
			sd.badTableFlag = true
			return 0
		}
		sd.readCLen()
		if sd.badTableFlag {
			return 0
		}
		if err := sd.readPTLen(maxNP, uint16(sd.pBit), -1); err != nil {
			sd.badTableFlag = true
			return 0
		}
	}
	sd.blockSize--

	index2 := sd.cTable[sd.bitBuf>>(bitBufSiz-12)]
	if index2 >= nc {
		mask := uint32(1 << (bitBufSiz - 1 - 12))
		for index2 >= nc {
			if sd.bitBuf&mask != 0 {
				index2 = sd.right[index2]
			} else {
				index2 = sd.left[index2]
			}
			mask >>= 1
		}
	}
	sd.fillBuf(uint16(sd.cLen[index2]))
	return index2
}

// decode runs the decompression loop into dstBase.
func (sd *scratchData) decode() error {
	sd.fillBuf(bitBufSiz)
	for {
		charC := sd.decodeC()
		if sd.badTableFlag {
			return errBadCompressedData
		}
		if charC < 256 {
			// Process an original character.
			if sd.outBuf >= sd.origSize {
				return nil
			}
			sd.dstBase[sd.outBuf] = uint8(charC)
			sd.outBuf++
		} else {
			// Process a pointer. Symbols from 256 up encode match
			// lengths of threshold and above.
			bytesRemain := charC - (256 - threshold)

			p := sd.decodeP()
			if p+1 > sd.outBuf {
				return errBadCompressedData
			}
			dataIdx := sd.outBuf - p - 1

			for i := uint16(0); i < bytesRemain; i++ {
				if sd.outBuf >= sd.origSize {
					return nil
				}
				if dataIdx >= sd.origSize {
					return errBadCompressedData
				}
				sd.dstBase[sd.outBuf] = sd.dstBase[dataIdx]
				sd.outBuf++
				dataIdx++
			}
		}
		if sd.outBuf >= sd.origSize {
			return nil
		}
	}
}

// efiDecompress decompresses a buffer in the EFI Compression Algorithm
// format. The buffer starts with two little-endian 32 bit values: the
// compressed size and the original size. pBit selects the variant.
func efiDecompress(data []byte, pBit uint8) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("buffer of %d bytes is too small for a compression header", len(data))
	}
	compSize := binary.LittleEndian.Uint32(data[0:])
	origSize := binary.LittleEndian.Uint32(data[4:])
	if uint64(compSize)+8 > uint64(len(data)) {
		return nil, fmt.Errorf("compressed size %#x overruns the buffer of %#x bytes", compSize, len(data))
	}

	sd := &scratchData{
		srcBase:  data[8:],
		dstBase:  make([]byte, origSize),
		compSize: compSize,
		origSize: origSize,
		pBit:     pBit,
	}
	if origSize == 0 {
		return sd.dstBase, nil
	}
	if err := sd.decode(); err != nil {
		return nil, err
	}
	if sd.outBuf != origSize {
		return nil, fmt.Errorf("decompressed %#x bytes, header declares %#x", sd.outBuf, origSize)
	}
	return sd.dstBase, nil
}

// EFI11Decompress decompresses a buffer with the EFI 1.1 variant of the
// EFI Compression Algorithm.
func EFI11Decompress(data []byte) ([]byte, error) {
	return efiDecompress(data, 4)
}

// TianoDecompress decompresses a buffer with the Tiano variant of the
// EFI Compression Algorithm.
func TianoDecompress(data []byte) ([]byte, error) {
	return efiDecompress(data, 5)
}
