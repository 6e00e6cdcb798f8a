package container

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/Faultbox/kiln/pkg/lzframe"
)

// Compression names how a container payload is stored on disk.
type Compression string

// Supported payload compression modes.
const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZlib Compression = "zlib"
)

// ParseCompression validates a compression name. The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionLZ4, CompressionZlib:
		return Compression(s), nil
	}
	return "", fmt.Errorf("unknown compression %q", s)
}

// PackPayload encodes a raw payload for storage with the given mode.
func PackPayload(mode Compression, raw []byte) ([]byte, error) {
	switch mode {
	case "", CompressionNone:
		return raw, nil
	case CompressionLZ4:
		return lzframe.Compress(raw)
	case CompressionZlib:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown compression %q", mode)
}

// UnpackPayload reverses PackPayload. size is the decoded length the metadata declares;
// decoding stops with ErrCorrupt as soon as the output would exceed it.
func UnpackPayload(mode Compression, stored []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative payload size %d", ErrCorrupt, size)
	}
	switch mode {
	case "", CompressionNone:
		return stored, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		buf.Grow(size)
		if _, err := lzframe.DecompressTo(&boundedWriter{w: &buf, left: size}, bytes.NewReader(stored)); err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrCorrupt, err)
		}
		return buf.Bytes(), nil
	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(stored))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %w", ErrCorrupt, err)
		}
		defer r.Close()

		raw, err := io.ReadAll(io.LimitReader(r, int64(size)+1))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %w", ErrCorrupt, err)
		}
		if len(raw) > size {
			return nil, fmt.Errorf("%w: zlib: %w", ErrCorrupt, errPayloadTooLarge)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("unknown compression %q", mode)
}

var errPayloadTooLarge = errors.New("payload larger than declared size")

// boundedWriter fails once more than left bytes have been written.
type boundedWriter struct {
	w    io.Writer
	left int
}

func (b *boundedWriter) Write(p []byte) (int, error) {
	if len(p) > b.left {
		return 0, errPayloadTooLarge
	}
	b.left -= len(p)
	return b.w.Write(p)
}
