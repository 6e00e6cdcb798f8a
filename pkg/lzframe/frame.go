// Package lzframe implements the single-frame streaming compression codec wrapped around
// container payloads. Input is split into fixed-size chunks, each compressed as one LZ4
// block, so peak memory stays at one chunk plus its worst-case compressed bound no matter
// how large the payload is.
//
// Frame layout (little-endian):
//
//	header   magic "KLZ4" | version u8 | flags u8 | block size log2 u8 | reserved u8
//	blocks   size u32 (high bit set = stored uncompressed) | data
//	footer   end mark u32 (0) | content size u64 | CRC-32 (IEEE) of content u32
package lzframe

import (
	"errors"
	"fmt"
)

// Frame errors.
var (
	ErrCompression    = errors.New("compression failed")
	ErrTruncatedFrame = errors.New("truncated frame")
	ErrTrailingData   = errors.New("trailing data after frame")
	ErrCorruptFrame   = errors.New("corrupt frame")
)

const (
	frameMagic   = "KLZ4"
	frameVersion = 1

	headerSize = 8
	footerSize = 4 + 8 + 4

	// flagChecksum marks a footer that carries a content checksum. Always set by Writer.
	flagChecksum = 0x01

	// uncompressedBit marks a block stored verbatim because compressing it did not help.
	uncompressedBit = 0x80000000

	minBlockLog2 = 10 // 1 KiB
	maxBlockLog2 = 22 // 4 MiB
)

// BlockSize is the default chunk size fed to the block compressor.
const BlockSize = 16 << 10

type header struct {
	version   uint8
	flags     uint8
	blockLog2 uint8
}

func (h header) blockSize() int {
	return 1 << h.blockLog2
}

func (h header) marshal() [headerSize]byte {
	var b [headerSize]byte
	copy(b[:4], frameMagic)
	b[4] = h.version
	b[5] = h.flags
	b[6] = h.blockLog2
	return b
}

func parseHeader(b []byte) (header, error) {
	if string(b[:4]) != frameMagic {
		return header{}, fmt.Errorf("%w: bad magic %q", ErrCorruptFrame, b[:4])
	}
	h := header{version: b[4], flags: b[5], blockLog2: b[6]}
	if h.version != frameVersion {
		return header{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptFrame, h.version)
	}
	if h.blockLog2 < minBlockLog2 || h.blockLog2 > maxBlockLog2 {
		return header{}, fmt.Errorf("%w: block size code %d out of range", ErrCorruptFrame, h.blockLog2)
	}
	return h, nil
}

// blockLog2 returns log2(size) when size is a supported power of two.
func blockLog2(size int) (uint8, error) {
	for l := uint8(minBlockLog2); l <= maxBlockLog2; l++ {
		if 1<<l == size {
			return l, nil
		}
	}
	return 0, fmt.Errorf("block size %d must be a power of two between %d and %d", size, 1<<minBlockLog2, 1<<maxBlockLog2)
}
