// Package container reads and writes the binary envelope every baked asset is stored in.
//
// File layout (little-endian):
//
//	offset 0    kind tag, 4 ASCII bytes ("MESH", "TEXI", "SKEL")
//	offset 4    version (uint32)
//	offset 8    metadata length L (uint32)
//	offset 12   payload length B (uint32)
//	offset 16   metadata document, L bytes of UTF-8 text
//	offset 16+L payload, B bytes
//
// The envelope knows nothing about what the metadata or payload mean; each baker validates
// its own metadata when decoding it.
package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Container errors.
var (
	ErrIO          = errors.New("container I/O error")
	ErrCorrupt     = errors.New("corrupt container")
	ErrUnknownKind = errors.New("unknown container kind")
)

// HeaderSize is the fixed size of the envelope header.
const HeaderSize = 16

// Kind is the 4-byte tag identifying what a container holds.
type Kind [4]byte

// Known container kinds.
var (
	KindMesh     = Kind{'M', 'E', 'S', 'H'}
	KindTexture  = Kind{'T', 'E', 'X', 'I'}
	KindSkeleton = Kind{'S', 'K', 'E', 'L'}
)

// String returns the tag as text.
func (k Kind) String() string {
	return string(k[:])
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindMesh, KindTexture, KindSkeleton:
		return true
	}
	return false
}

// ParseKind converts a 4-character tag into a Kind.
func ParseKind(s string) (Kind, error) {
	var k Kind
	if len(s) != len(k) {
		return k, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	copy(k[:], s)
	if !k.Valid() {
		return k, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Container is one baked asset: a kind tag, a format version, a metadata document and an
// opaque payload.
type Container struct {
	Kind     Kind
	Version  uint32
	Metadata []byte
	Payload  []byte
}

// Header is the fixed-size prefix of a container file.
type Header struct {
	Kind           Kind
	Version        uint32
	MetadataLength uint32
	PayloadLength  uint32
}

// Size returns the total encoded size of the container.
func (c *Container) Size() int64 {
	return HeaderSize + int64(len(c.Metadata)) + int64(len(c.Payload))
}

// Encode writes c to w.
func Encode(w io.Writer, c *Container) error {
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind.String())
	}
	if len(c.Metadata) > math.MaxUint32 || len(c.Payload) > math.MaxUint32 {
		return fmt.Errorf("container section exceeds 4 GiB")
	}

	hdr := Header{
		Kind:           c.Kind,
		Version:        c.Version,
		MetadataLength: uint32(len(c.Metadata)),
		PayloadLength:  uint32(len(c.Payload)),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: writing header: %w", ErrIO, err)
	}
	if _, err := w.Write(c.Metadata); err != nil {
		return fmt.Errorf("%w: writing metadata: %w", ErrIO, err)
	}
	if _, err := w.Write(c.Payload); err != nil {
		return fmt.Errorf("%w: writing payload: %w", ErrIO, err)
	}
	return nil
}

// Decode reads a container from r. size is the number of bytes available in r; declared
// section lengths that do not add up to exactly size are rejected as corrupt.
func Decode(r io.Reader, size int64) (*Container, error) {
	if size < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, size)
	}

	var hdr Header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrIO, err)
	}
	if !hdr.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrCorrupt, hdr.Kind.String())
	}

	remaining := size - HeaderSize
	declared := int64(hdr.MetadataLength) + int64(hdr.PayloadLength)
	if declared > remaining {
		return nil, fmt.Errorf("%w: declared %d bytes, only %d remain", ErrCorrupt, declared, remaining)
	}
	if declared < remaining {
		return nil, fmt.Errorf("%w: %d trailing bytes after payload", ErrCorrupt, remaining-declared)
	}

	c := &Container{
		Kind:     hdr.Kind,
		Version:  hdr.Version,
		Metadata: make([]byte, hdr.MetadataLength),
		Payload:  make([]byte, hdr.PayloadLength),
	}
	if _, err := io.ReadFull(r, c.Metadata); err != nil {
		return nil, fmt.Errorf("%w: reading metadata: %w", ErrIO, err)
	}
	if _, err := io.ReadFull(r, c.Payload); err != nil {
		return nil, fmt.Errorf("%w: reading payload: %w", ErrIO, err)
	}
	return c, nil
}

// Write serializes c to path, creating parent directories as needed. The file is written
// to a temporary sibling first and renamed into place, so readers never observe a
// half-written container.
func Write(path string, c *Container) error {
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind.String())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating directory: %w", ErrIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrIO, path, err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := Encode(bw, c); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrIO, path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: renaming into %s: %w", ErrIO, path, err)
	}
	return nil
}

// Read loads the container stored at path.
func Read(path string) (*Container, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrIO, path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}

	c, err := Decode(bufio.NewReader(file), info.Size())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return c, nil
}

// ReadHeader reads only the fixed header of the container at path.
func ReadHeader(path string) (Header, error) {
	var hdr Header
	file, err := os.Open(path)
	if err != nil {
		return hdr, fmt.Errorf("%w: opening %s: %w", ErrIO, path, err)
	}
	defer file.Close()

	if err := binary.Read(file, binary.LittleEndian, &hdr); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return hdr, fmt.Errorf("%w: %s is shorter than the header", ErrCorrupt, path)
		}
		return hdr, fmt.Errorf("%w: reading %s: %w", ErrIO, path, err)
	}
	if !hdr.Kind.Valid() {
		return hdr, fmt.Errorf("%w: unknown kind %q", ErrCorrupt, hdr.Kind.String())
	}
	return hdr, nil
}
