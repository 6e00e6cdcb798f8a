package skeleton

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	gomath "math"
	"unicode/utf8"

	"github.com/Faultbox/kiln/pkg/math"
)

// Payload sections, in file order. All values are little-endian.
//
// nodes:      u32 count, then per node:
//
//	str name, i32 parent, i32 mesh, u8 flags (bit 0: matrix),
//	16 x f32 matrix if flagged else 3 x f32 T, 4 x f32 R, 3 x f32 S,
//	u32 child count, i32 children
//
// skins:      u32 count, then per skin:
//
//	str name, i32 skeleton, i32 mesh node, u32 joint count, i32 joints,
//	16 x f32 inverse bind matrix per joint
//
// animations: u32 count, then per clip:
//
//	str name, u32 sampler count, per sampler
//	(u8 interpolation, u8 components, u32 key count, f32 times, u32 float count, f32 values),
//	u32 channel count, per channel (i32 node, u8 path, u32 sampler)
//
// str is a u16 byte length followed by UTF-8 bytes.
const (
	flagMatrix = 1 << 0

	maxNameLength = 1<<16 - 1
)

// ErrTruncatedSection is returned when a payload section ends early.
var ErrTruncatedSection = errors.New("truncated skeleton section")

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) put(v any) {
	// Writes to a bytes.Buffer only fail on unsupported types.
	if err := binary.Write(&e.buf, binary.LittleEndian, v); err != nil {
		panic(fmt.Sprintf("skeleton: encoding %T: %v", v, err))
	}
}

func (e *encoder) str(s string) {
	s = truncateName(s)
	e.put(uint16(len(s)))
	e.buf.WriteString(s)
}

// truncateName cuts s to at most maxNameLength bytes without splitting a rune.
func truncateName(s string) string {
	if len(s) <= maxNameLength {
		return s
	}
	n := maxNameLength
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (e *encoder) ints(v []int) {
	e.put(uint32(len(v)))
	for _, x := range v {
		e.put(int32(x))
	}
}

// decoder reads sections with a sticky error, so callers check once per record.
type decoder struct {
	r   *bytes.Reader
	err error
}

func newDecoder(b []byte) *decoder {
	return &decoder{r: bytes.NewReader(b)}
}

func (d *decoder) get(v any) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrTruncatedSection
		}
		d.err = err
	}
}

func (d *decoder) u8() uint8 {
	var v uint8
	d.get(&v)
	return v
}

func (d *decoder) i32() int {
	var v int32
	d.get(&v)
	return int(v)
}

// count reads a u32 element count and rejects counts that cannot fit in the remaining
// bytes given each element's minimum size.
func (d *decoder) count(minSize int) int {
	var v uint32
	d.get(&v)
	if d.err != nil {
		return 0
	}
	if int64(v)*int64(minSize) > int64(d.r.Len()) {
		d.err = fmt.Errorf("%w: %d elements need at least %d bytes, %d remain", ErrTruncatedSection, v, int64(v)*int64(minSize), d.r.Len())
		return 0
	}
	return int(v)
}

func (d *decoder) str() string {
	var n uint16
	d.get(&n)
	if d.err != nil {
		return ""
	}
	b := make([]byte, n)
	d.get(b)
	return string(b)
}

func (d *decoder) ints() []int {
	n := d.count(4)
	if d.err != nil || n == 0 {
		return nil
	}
	raw := make([]int32, n)
	d.get(raw)
	out := make([]int, n)
	for i, v := range raw {
		out[i] = int(v)
	}
	return out
}

func (d *decoder) floats() []float32 {
	n := d.count(4)
	if d.err != nil || n == 0 {
		return nil
	}
	out := make([]float32, n)
	d.get(out)
	return out
}

func (d *decoder) done(section string) error {
	if d.err != nil {
		return fmt.Errorf("%s: %w", section, d.err)
	}
	if d.r.Len() != 0 {
		return fmt.Errorf("%s: %d trailing bytes", section, d.r.Len())
	}
	return nil
}

// MarshalSections encodes the three payload sections.
func (a *Asset) MarshalSections() (nodes, skins, animations []byte) {
	var e encoder
	e.put(uint32(len(a.Nodes)))
	for i := range a.Nodes {
		n := &a.Nodes[i]
		e.str(n.Name)
		e.put(int32(n.Parent))
		e.put(int32(n.Mesh))
		if n.HasMatrix {
			e.put(uint8(flagMatrix))
			e.put([16]float32(n.Matrix))
		} else {
			e.put(uint8(0))
			e.put(n.Translation.Array())
			e.put(n.Rotation.Array())
			e.put(n.Scale.Array())
		}
		e.ints(n.Children)
	}
	nodes = bytes.Clone(e.buf.Bytes())

	e.buf.Reset()
	e.put(uint32(len(a.Skins)))
	for i := range a.Skins {
		s := &a.Skins[i]
		e.str(s.Name)
		e.put(int32(s.Skeleton))
		e.put(int32(s.MeshNode))
		e.ints(s.Joints)
		for _, m := range s.InverseBindMatrices {
			e.put([16]float32(m))
		}
	}
	skins = bytes.Clone(e.buf.Bytes())

	e.buf.Reset()
	e.put(uint32(len(a.Animations)))
	for i := range a.Animations {
		anim := &a.Animations[i]
		e.str(anim.Name)
		e.put(uint32(len(anim.Samplers)))
		for _, s := range anim.Samplers {
			e.put(uint8(s.Interpolation))
			e.put(uint8(s.Components))
			e.put(uint32(len(s.Input)))
			e.put(s.Input)
			e.put(uint32(len(s.Output)))
			e.put(s.Output)
		}
		e.put(uint32(len(anim.Channels)))
		for _, ch := range anim.Channels {
			e.put(int32(ch.Node))
			e.put(uint8(ch.Path))
			e.put(uint32(ch.Sampler))
		}
	}
	animations = bytes.Clone(e.buf.Bytes())
	return nodes, skins, animations
}

// UnmarshalSections decodes the three payload sections into a. Structural invariants
// are not checked here; call Validate afterwards.
func (a *Asset) UnmarshalSections(nodes, skins, animations []byte) error {
	var err error
	if a.Nodes, err = decodeNodes(nodes); err != nil {
		return err
	}
	if a.Skins, err = decodeSkins(skins); err != nil {
		return err
	}
	if a.Animations, err = decodeAnimations(animations); err != nil {
		return err
	}
	return nil
}

func decodeNodes(b []byte) ([]Node, error) {
	d := newDecoder(b)
	// name length + parent + mesh + flags + TRS + child count
	n := d.count(2 + 4 + 4 + 1 + 40 + 4)
	var out []Node
	if n > 0 {
		out = make([]Node, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		node := NewNode(d.str())
		node.Parent = d.i32()
		node.Mesh = d.i32()
		if d.u8()&flagMatrix != 0 {
			var m [16]float32
			d.get(&m)
			node.HasMatrix = true
			node.Matrix = math.Mat4(m)
		} else {
			var t, s [3]float32
			var r [4]float32
			d.get(&t)
			d.get(&r)
			d.get(&s)
			node.Translation = math.Vec3FromArray(t)
			node.Rotation = math.QuatFromArray(r)
			node.Scale = math.Vec3FromArray(s)
		}
		node.Children = d.ints()
		out[i] = node
	}
	if err := d.done("nodes"); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeSkins(b []byte) ([]Skin, error) {
	d := newDecoder(b)
	n := d.count(2 + 4 + 4 + 4)
	var out []Skin
	if n > 0 {
		out = make([]Skin, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		s := Skin{Name: d.str(), Skeleton: d.i32(), MeshNode: d.i32(), Joints: d.ints()}
		if d.err == nil && len(s.Joints) > 0 {
			if 64*len(s.Joints) > d.r.Len() {
				d.err = fmt.Errorf("%w: %d inverse bind matrices", ErrTruncatedSection, len(s.Joints))
				break
			}
			raw := make([][16]float32, len(s.Joints))
			d.get(raw)
			s.InverseBindMatrices = make([]math.Mat4, len(raw))
			for j, m := range raw {
				s.InverseBindMatrices[j] = math.Mat4(m)
			}
		}
		out[i] = s
	}
	if err := d.done("skins"); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeAnimations(b []byte) ([]Animation, error) {
	d := newDecoder(b)
	n := d.count(2 + 4 + 4)
	var out []Animation
	if n > 0 {
		out = make([]Animation, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		anim := Animation{Name: d.str()}
		ns := d.count(1 + 1 + 4 + 4)
		if ns > 0 {
			anim.Samplers = make([]Sampler, ns)
		}
		for j := 0; j < ns && d.err == nil; j++ {
			s := &anim.Samplers[j]
			s.Interpolation = Interpolation(d.u8())
			s.Components = int(d.u8())
			s.Input = d.floats()
			s.Output = d.floats()
		}
		nc := d.count(4 + 1 + 4)
		if nc > 0 {
			anim.Channels = make([]Channel, nc)
		}
		for j := 0; j < nc && d.err == nil; j++ {
			var sampler uint32
			ch := &anim.Channels[j]
			ch.Node = d.i32()
			ch.Path = Path(d.u8())
			d.get(&sampler)
			if sampler > gomath.MaxInt32 {
				d.err = fmt.Errorf("channel sampler index %d", sampler)
			}
			ch.Sampler = int(sampler)
		}
		out[i] = anim
	}
	if err := d.done("animations"); err != nil {
		return nil, err
	}
	return out, nil
}
