package lzframe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Writer compresses everything written to it into a single frame on the underlying writer.
// Close must be called to emit the footer. A Writer is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	hdr header

	chunk   []byte // pending input, at most one block
	scratch []byte // worst-case compressed bound for one block
	comp    lz4.Compressor
	crc     hash.Hash32
	size    uint64

	wroteHeader bool
	closed      bool
	err         error
}

// NewWriter returns a Writer using the default 16 KiB block size.
func NewWriter(w io.Writer) *Writer {
	zw, _ := NewWriterSize(w, BlockSize)
	return zw
}

// NewWriterSize returns a Writer with a custom block size. The size must be a power of two
// between 1 KiB and 4 MiB.
func NewWriterSize(w io.Writer, blockSize int) (*Writer, error) {
	l, err := blockLog2(blockSize)
	if err != nil {
		return nil, err
	}
	return &Writer{
		w:       w,
		hdr:     header{version: frameVersion, flags: flagChecksum, blockLog2: l},
		chunk:   make([]byte, 0, blockSize),
		scratch: make([]byte, lz4.CompressBlockBound(blockSize)),
		crc:     crc32.NewIEEE(),
	}, nil
}

// Write buffers p and emits a compressed block each time a full chunk is available.
func (zw *Writer) Write(p []byte) (int, error) {
	if zw.err != nil {
		return 0, zw.err
	}
	if zw.closed {
		return 0, fmt.Errorf("%w: write after close", ErrCompression)
	}
	if err := zw.writeHeader(); err != nil {
		return 0, err
	}

	written := 0
	for len(p) > 0 {
		n := copy(zw.chunk[len(zw.chunk):cap(zw.chunk)], p)
		zw.chunk = zw.chunk[:len(zw.chunk)+n]
		p = p[n:]
		written += n

		if len(zw.chunk) == cap(zw.chunk) {
			if err := zw.flushBlock(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Close flushes the last partial chunk and writes the footer. It does not close the
// underlying writer.
func (zw *Writer) Close() error {
	if zw.closed {
		return zw.err
	}
	if err := zw.writeHeader(); err != nil {
		return err
	}
	if len(zw.chunk) > 0 {
		if err := zw.flushBlock(); err != nil {
			return err
		}
	}
	zw.closed = true

	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[0:], 0)
	binary.LittleEndian.PutUint64(footer[4:], zw.size)
	binary.LittleEndian.PutUint32(footer[12:], zw.crc.Sum32())
	if _, err := zw.w.Write(footer[:]); err != nil {
		zw.err = fmt.Errorf("%w: writing footer: %w", ErrCompression, err)
	}
	return zw.err
}

func (zw *Writer) writeHeader() error {
	if zw.wroteHeader {
		return nil
	}
	zw.wroteHeader = true
	h := zw.hdr.marshal()
	if _, err := zw.w.Write(h[:]); err != nil {
		zw.err = fmt.Errorf("%w: writing header: %w", ErrCompression, err)
	}
	return zw.err
}

func (zw *Writer) flushBlock() error {
	src := zw.chunk
	zw.crc.Write(src)
	zw.size += uint64(len(src))

	n, err := zw.comp.CompressBlock(src, zw.scratch)
	if err != nil {
		zw.err = fmt.Errorf("%w: %w", ErrCompression, err)
		return zw.err
	}

	var prefix [4]byte
	block := zw.scratch[:n]
	if n == 0 || n >= len(src) {
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(src))|uncompressedBit)
		block = src
	} else {
		binary.LittleEndian.PutUint32(prefix[:], uint32(n))
	}

	if _, err := zw.w.Write(prefix[:]); err != nil {
		zw.err = fmt.Errorf("%w: writing block: %w", ErrCompression, err)
		return zw.err
	}
	if _, err := zw.w.Write(block); err != nil {
		zw.err = fmt.Errorf("%w: writing block: %w", ErrCompression, err)
		return zw.err
	}

	zw.chunk = zw.chunk[:0]
	return nil
}

// CompressTo streams src into a single frame written to dst and returns the number of
// uncompressed bytes consumed.
func CompressTo(dst io.Writer, src io.Reader) (int64, error) {
	zw := NewWriter(dst)
	n, err := io.Copy(zw, src)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	return n, zw.Close()
}

// Compress returns input as one frame. On failure no partial output is returned.
func Compress(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + footerSize + len(input)/2)

	zw := NewWriter(&buf)
	if _, err := zw.Write(input); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
