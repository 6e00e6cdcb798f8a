package mesh

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// attributes holds the per-vertex streams of one primitive.
type attributes struct {
	positions [][3]float32
	normals   [][3]float32
	tangents  [][4]float32
	uvs       [][2]float32
	joints    [][4]uint16
	weights   [][4]float32
}

func accessorFor(doc *gltf.Document, prim *gltf.Primitive, name string) (*gltf.Accessor, bool, error) {
	idx, ok := prim.Attributes[name]
	if !ok {
		return nil, false, nil
	}
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, false, fmt.Errorf("%s accessor %d out of range", name, idx)
	}
	return doc.Accessors[idx], true, nil
}

func requireAccessor(doc *gltf.Document, prim *gltf.Primitive, name string) (*gltf.Accessor, error) {
	acr, ok, err := accessorFor(doc, prim, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, name)
	}
	return acr, nil
}

// readAttributes reads the required streams and whichever optional groups are present.
func readAttributes(doc *gltf.Document, prim *gltf.Primitive) (*attributes, Capabilities, []string, error) {
	var a attributes
	var caps Capabilities
	var warnings []string

	acr, err := requireAccessor(doc, prim, gltf.POSITION)
	if err != nil {
		return nil, caps, nil, err
	}
	if a.positions, err = modeler.ReadPosition(doc, acr, nil); err != nil {
		return nil, caps, nil, fmt.Errorf("reading %s: %w", gltf.POSITION, err)
	}

	if acr, err = requireAccessor(doc, prim, gltf.NORMAL); err != nil {
		return nil, caps, nil, err
	}
	if a.normals, err = modeler.ReadNormal(doc, acr, nil); err != nil {
		return nil, caps, nil, fmt.Errorf("reading %s: %w", gltf.NORMAL, err)
	}

	if acr, err = requireAccessor(doc, prim, gltf.TEXCOORD_0); err != nil {
		return nil, caps, nil, err
	}
	if a.uvs, err = modeler.ReadTextureCoord(doc, acr, nil); err != nil {
		return nil, caps, nil, fmt.Errorf("reading %s: %w", gltf.TEXCOORD_0, err)
	}

	acr, ok, err := accessorFor(doc, prim, gltf.TANGENT)
	if err != nil {
		return nil, caps, nil, err
	}
	if ok {
		if a.tangents, err = modeler.ReadTangent(doc, acr, nil); err != nil {
			return nil, caps, nil, fmt.Errorf("reading %s: %w", gltf.TANGENT, err)
		}
		caps.HasTangent = true
	}

	jointsAcr, hasJoints, err := accessorFor(doc, prim, gltf.JOINTS_0)
	if err != nil {
		return nil, caps, nil, err
	}
	weightsAcr, hasWeights, err := accessorFor(doc, prim, gltf.WEIGHTS_0)
	if err != nil {
		return nil, caps, nil, err
	}
	switch {
	case hasJoints && hasWeights:
		if a.joints, err = modeler.ReadJoints(doc, jointsAcr, nil); err != nil {
			return nil, caps, nil, fmt.Errorf("reading %s: %w", gltf.JOINTS_0, err)
		}
		if a.weights, err = modeler.ReadWeights(doc, weightsAcr, nil); err != nil {
			return nil, caps, nil, fmt.Errorf("reading %s: %w", gltf.WEIGHTS_0, err)
		}
		caps.HasSkin = true
	case hasJoints:
		warnings = append(warnings, "JOINTS_0 without WEIGHTS_0, skinning data ignored")
	case hasWeights:
		warnings = append(warnings, "WEIGHTS_0 without JOINTS_0, skinning data ignored")
	}

	n := len(a.positions)
	counts := map[string]int{
		gltf.NORMAL:     len(a.normals),
		gltf.TEXCOORD_0: len(a.uvs),
	}
	if caps.HasTangent {
		counts[gltf.TANGENT] = len(a.tangents)
	}
	if caps.HasSkin {
		counts[gltf.JOINTS_0] = len(a.joints)
		counts[gltf.WEIGHTS_0] = len(a.weights)
	}
	for name, c := range counts {
		if c != n {
			return nil, caps, nil, fmt.Errorf("%s has %d elements, %s has %d", name, c, gltf.POSITION, n)
		}
	}
	return &a, caps, warnings, nil
}

// interleave writes every vertex in the layout of f. Optional groups are emitted only
// when f carries them.
func interleave(a *attributes, f VertexFormat) []byte {
	caps := f.Capabilities()
	stride := f.Stride()
	out := make([]byte, len(a.positions)*stride)

	for i := range a.positions {
		o := i * stride
		o = putFloats(out, o, a.positions[i][:])
		o = putFloats(out, o, a.normals[i][:])
		if caps.HasTangent {
			o = putFloats(out, o, a.tangents[i][:])
		}
		o = putFloats(out, o, a.uvs[i][:])
		if caps.HasSkin {
			for _, j := range a.joints[i] {
				binary.LittleEndian.PutUint16(out[o:], j)
				o += 2
			}
			putFloats(out, o, a.weights[i][:])
		}
	}
	return out
}

func putFloats(dst []byte, off int, vals []float32) int {
	for _, v := range vals {
		binary.LittleEndian.PutUint32(dst[off:], gomath.Float32bits(v))
		off += 4
	}
	return off
}

// readIndices returns the triangle list for prim, generating sequential indices for
// non-indexed geometry.
func readIndices(doc *gltf.Document, prim *gltf.Primitive, vertexCount int) ([]uint32, error) {
	var indices []uint32
	if prim.Indices != nil {
		idx := *prim.Indices
		if idx < 0 || idx >= len(doc.Accessors) {
			return nil, fmt.Errorf("index accessor %d out of range", idx)
		}
		var err error
		if indices, err = modeler.ReadIndices(doc, doc.Accessors[idx], nil); err != nil {
			return nil, fmt.Errorf("reading indices: %w", err)
		}
	} else {
		indices = make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices is not a whole number of triangles", ErrInvalidIndices, len(indices))
	}
	for _, i := range indices {
		if int(i) >= vertexCount {
			return nil, fmt.Errorf("%w: index %d addresses past %d vertices", ErrInvalidIndices, i, vertexCount)
		}
	}
	return indices, nil
}

// FlipWinding swaps the second and third index of every triangle in place.
func FlipWinding(indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		indices[i+1], indices[i+2] = indices[i+2], indices[i+1]
	}
}

// EncodeIndices packs indices little-endian with the given element size.
func EncodeIndices(indices []uint32, size int) []byte {
	out := make([]byte, len(indices)*size)
	for i, v := range indices {
		switch size {
		case 1:
			out[i] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
		default:
			binary.LittleEndian.PutUint32(out[i*4:], v)
		}
	}
	return out
}

// DecodeIndices reverses EncodeIndices.
func DecodeIndices(b []byte, size int) []uint32 {
	out := make([]uint32, len(b)/size)
	for i := range out {
		switch size {
		case 1:
			out[i] = uint32(b[i])
		case 2:
			out[i] = uint32(binary.LittleEndian.Uint16(b[i*2:]))
		default:
			out[i] = binary.LittleEndian.Uint32(b[i*4:])
		}
	}
	return out
}
