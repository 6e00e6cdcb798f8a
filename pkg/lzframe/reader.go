package lzframe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/pierrec/lz4/v4"
)

// DecompressTo decodes exactly one frame from src into dst and returns the number of bytes
// written. Each block is decoded into one reusable buffer of the frame's block size and
// written to dst before the next block is read, so dst sees one Write per block.
// Input that ends before the footer yields ErrTruncatedFrame; any byte left in src after
// the footer yields ErrTrailingData.
func DecompressTo(dst io.Writer, src io.Reader) (int64, error) {
	var hb [headerSize]byte
	if err := readFull(src, hb[:], "header"); err != nil {
		return 0, err
	}
	hdr, err := parseHeader(hb[:])
	if err != nil {
		return 0, err
	}

	blockSize := hdr.blockSize()
	out := make([]byte, blockSize)
	in := make([]byte, lz4.CompressBlockBound(blockSize))
	crc := crc32.NewIEEE()
	var total int64

	for {
		var sb [4]byte
		if err := readFull(src, sb[:], "block size"); err != nil {
			return total, err
		}
		raw := binary.LittleEndian.Uint32(sb[:])
		if raw == 0 {
			break
		}

		stored := raw&uncompressedBit != 0
		size := int(raw &^ uncompressedBit)
		if size > len(in) || (stored && size > blockSize) {
			return total, fmt.Errorf("%w: block of %d bytes exceeds bound for block size %d", ErrCorruptFrame, size, blockSize)
		}

		n := size
		if stored {
			if err := readFull(src, out[:size], "block"); err != nil {
				return total, err
			}
		} else {
			if err := readFull(src, in[:size], "block"); err != nil {
				return total, err
			}
			var err error
			if n, err = lz4.UncompressBlock(in[:size], out); err != nil {
				return total, fmt.Errorf("%w: %w", ErrCorruptFrame, err)
			}
		}

		crc.Write(out[:n])
		if _, err := dst.Write(out[:n]); err != nil {
			return total, err
		}
		total += int64(n)
	}

	var fb [footerSize - 4]byte
	if err := readFull(src, fb[:], "footer"); err != nil {
		return total, err
	}
	size := binary.LittleEndian.Uint64(fb[0:])
	sum := binary.LittleEndian.Uint32(fb[8:])
	if size != uint64(total) {
		return total, fmt.Errorf("%w: content size %d, decoded %d", ErrCorruptFrame, size, total)
	}
	if hdr.flags&flagChecksum != 0 && sum != crc.Sum32() {
		return total, fmt.Errorf("%w: content checksum mismatch", ErrCorruptFrame)
	}

	var extra [1]byte
	if n, _ := io.ReadFull(src, extra[:]); n > 0 {
		return total, ErrTrailingData
	}
	return total, nil
}

// Decompress decodes a complete frame held in memory.
func Decompress(framed []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := DecompressTo(&buf, bytes.NewReader(framed)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readFull(r io.Reader, p []byte, what string) error {
	if _, err := io.ReadFull(r, p); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: reading %s", ErrTruncatedFrame, what)
		}
		return fmt.Errorf("reading %s: %w", what, err)
	}
	return nil
}
