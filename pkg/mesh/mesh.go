// Package mesh bakes glTF primitives into MESH containers with interleaved vertex buffers
// and compact index buffers, and loads them back for the renderer.
package mesh

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/kiln/pkg/container"
	"github.com/Faultbox/kiln/pkg/encoding"
)

// Mesh errors.
var (
	ErrDecode           = errors.New("mesh decode error")
	ErrMissingAttribute = errors.New("missing vertex attribute")
	ErrUnsupportedMode  = errors.New("unsupported primitive mode")
	ErrInvalidIndices   = errors.New("invalid index buffer")
)

// Version is the MESH container version written by this package.
const Version = 1

// Extensions lists the scene file extensions the baker reads.
var Extensions = []string{".gltf", ".glb"}

// IsSource reports whether path has a scene extension.
func IsSource(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Options controls a mesh bake.
type Options struct {
	// Source is recorded as provenance. Defaults to the scene path.
	Source string
	// KeepWinding disables the triangle winding flip.
	KeepWinding bool
}

// Metadata is the YAML document stored in a MESH container.
type Metadata struct {
	Name             string                `yaml:"name"`
	AssetID          string                `yaml:"asset_id"`
	VertexFormat     VertexFormat          `yaml:"vertex_format"`
	VertexCount      int                   `yaml:"vertex_count"`
	VertexBufferSize int                   `yaml:"vertex_buffer_size"`
	IndexCount       int                   `yaml:"index_count"`
	IndexBufferSize  int                   `yaml:"index_buffer_size"`
	IndexSize        int                   `yaml:"index_size"`
	Bounds           Bounds                `yaml:"bounds"`
	Source           string                `yaml:"source"`
	Compression      container.Compression `yaml:"compression"`
}

// Asset is one baked primitive.
type Asset struct {
	Metadata Metadata
	Vertices []byte
	Indices  []byte

	MeshIndex      int
	PrimitiveIndex int
	meshName       string
}

// Failure records a primitive that could not be baked.
type Failure struct {
	Mesh      int
	Primitive int
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("mesh %d primitive %d: %v", f.Mesh, f.Primitive, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Result is everything a scene bake produced. Failed primitives do not stop their
// siblings from baking.
type Result struct {
	Assets   []*Asset
	Failures []Failure
	Warnings []string
}

// Bake opens the scene at scenePath and bakes every primitive of every mesh.
// Only a scene that cannot be opened is an error.
func Bake(scenePath string, opts Options) (*Result, error) {
	doc, err := gltf.Open(scenePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrDecode, scenePath, err)
	}
	if opts.Source == "" {
		opts.Source = scenePath
	}
	return BakeDocument(doc, opts), nil
}

// BakeDocument bakes every primitive of an already parsed scene.
func BakeDocument(doc *gltf.Document, opts Options) *Result {
	res := &Result{}
	source := encoding.NormalizePath(opts.Source)

	for mi, m := range doc.Meshes {
		meshName := encoding.NameOr(encoding.NormalizeName(m.Name), "mesh"+strconv.Itoa(mi))
		for pi, prim := range m.Primitives {
			asset, warnings, err := bakePrimitive(doc, prim, opts)
			for _, w := range warnings {
				res.Warnings = append(res.Warnings, fmt.Sprintf("mesh %d primitive %d: %s", mi, pi, w))
			}
			if err != nil {
				res.Failures = append(res.Failures, Failure{Mesh: mi, Primitive: pi, Err: err})
				continue
			}

			asset.MeshIndex = mi
			asset.PrimitiveIndex = pi
			asset.meshName = meshName
			asset.Metadata.Name = meshName + "." + strconv.Itoa(pi)
			asset.Metadata.Source = source
			asset.Metadata.AssetID = container.AssetID(source, fmt.Sprintf("%d:%s.%d", mi, meshName, pi))
			res.Assets = append(res.Assets, asset)
		}
	}
	return res
}

func bakePrimitive(doc *gltf.Document, prim *gltf.Primitive, opts Options) (*Asset, []string, error) {
	if prim.Mode != gltf.PrimitiveTriangles {
		return nil, nil, fmt.Errorf("%w: mode %d", ErrUnsupportedMode, prim.Mode)
	}

	attrs, caps, warnings, err := readAttributes(doc, prim)
	if err != nil {
		return nil, warnings, err
	}
	vertexCount := len(attrs.positions)

	indices, err := readIndices(doc, prim, vertexCount)
	if err != nil {
		return nil, warnings, err
	}
	if !opts.KeepWinding {
		FlipWinding(indices)
	}

	format := FormatFor(caps)
	vertices := interleave(attrs, format)
	indexSize := IndexSize(vertexCount)
	indexBytes := EncodeIndices(indices, indexSize)

	return &Asset{
		Metadata: Metadata{
			VertexFormat:     format,
			VertexCount:      vertexCount,
			VertexBufferSize: len(vertices),
			IndexCount:       len(indices),
			IndexBufferSize:  len(indexBytes),
			IndexSize:        indexSize,
			Bounds:           ComputeBounds(attrs.positions),
			Compression:      container.CompressionNone,
		},
		Vertices: vertices,
		Indices:  indexBytes,
	}, warnings, nil
}

// FileName returns the output name for this primitive: <stem>.<index>_<mesh>.<primitive>.mesh.
// The mesh index keeps meshes that share a name apart.
func (a *Asset) FileName(stem string) string {
	mesh := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, a.meshName)
	return fmt.Sprintf("%s.%d_%s.%d.mesh", stem, a.MeshIndex, mesh, a.PrimitiveIndex)
}

// Container packs the asset, compressing vertex and index bytes together with mode.
func (a *Asset) Container(mode container.Compression) (*container.Container, error) {
	raw := make([]byte, 0, len(a.Vertices)+len(a.Indices))
	raw = append(raw, a.Vertices...)
	raw = append(raw, a.Indices...)

	payload, err := container.PackPayload(mode, raw)
	if err != nil {
		return nil, fmt.Errorf("mesh %s: %w", a.Metadata.Name, err)
	}
	meta := a.Metadata
	meta.Compression = mode
	if meta.Compression == "" {
		meta.Compression = container.CompressionNone
	}
	return container.New(container.KindMesh, Version, meta, payload)
}

// Write stores the asset as a MESH container at path.
func (a *Asset) Write(path string, mode container.Compression) error {
	c, err := a.Container(mode)
	if err != nil {
		return err
	}
	return container.Write(path, c)
}

// Mesh is a loaded mesh ready for upload.
type Mesh struct {
	Metadata Metadata
	Vertices []byte
	Indices  []byte
}

// Format returns the vertex layout.
func (m *Mesh) Format() VertexFormat { return m.Metadata.VertexFormat }

// Bounds returns the bounding volume.
func (m *Mesh) Bounds() Bounds { return m.Metadata.Bounds }

// IndexValues decodes the index buffer.
func (m *Mesh) IndexValues() []uint32 {
	return DecodeIndices(m.Indices, m.Metadata.IndexSize)
}

// Load reads a MESH container.
func Load(path string) (*Mesh, error) {
	c, err := container.Read(path)
	if err != nil {
		return nil, err
	}
	m, err := FromContainer(c)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, nil
}

// FromContainer validates and unpacks an in-memory MESH container.
func FromContainer(c *container.Container) (*Mesh, error) {
	if err := c.Expect(container.KindMesh, Version); err != nil {
		return nil, err
	}
	var meta Metadata
	if err := c.DecodeMetadata(&meta); err != nil {
		return nil, err
	}

	stride := meta.VertexFormat.Stride()
	switch {
	case meta.VertexBufferSize < 0 || meta.IndexBufferSize < 0:
		return nil, fmt.Errorf("%w: negative buffer size", container.ErrCorrupt)
	case meta.VertexBufferSize%stride != 0:
		return nil, fmt.Errorf("%w: vertex buffer %d is not a multiple of %s stride %d", container.ErrCorrupt, meta.VertexBufferSize, meta.VertexFormat, stride)
	case meta.VertexBufferSize/stride != meta.VertexCount:
		return nil, fmt.Errorf("%w: vertex count %d does not match buffer size", container.ErrCorrupt, meta.VertexCount)
	case meta.IndexSize != 1 && meta.IndexSize != 2 && meta.IndexSize != 4:
		return nil, fmt.Errorf("%w: index size %d", container.ErrCorrupt, meta.IndexSize)
	case meta.IndexBufferSize != meta.IndexCount*meta.IndexSize:
		return nil, fmt.Errorf("%w: index count %d does not match buffer size %d", container.ErrCorrupt, meta.IndexCount, meta.IndexBufferSize)
	}

	raw, err := container.UnpackPayload(meta.Compression, c.Payload, meta.VertexBufferSize+meta.IndexBufferSize)
	if err != nil {
		return nil, err
	}
	if len(raw) != meta.VertexBufferSize+meta.IndexBufferSize {
		return nil, fmt.Errorf("%w: mesh payload is %d bytes, metadata says %d", container.ErrCorrupt, len(raw), meta.VertexBufferSize+meta.IndexBufferSize)
	}

	return &Mesh{
		Metadata: meta,
		Vertices: raw[:meta.VertexBufferSize:meta.VertexBufferSize],
		Indices:  raw[meta.VertexBufferSize:],
	}, nil
}
