package skeleton

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/kiln/pkg/container"
	"github.com/Faultbox/kiln/pkg/encoding"
	"github.com/Faultbox/kiln/pkg/math"
)

// Options controls a skeleton bake.
type Options struct {
	// Source is recorded as provenance. Defaults to the scene path.
	Source string
	// Name overrides the asset name, which defaults to the scene file stem.
	Name string
}

// Bake opens the scene at scenePath and extracts its hierarchy, first skin and clips.
func Bake(scenePath string, opts Options) (*Asset, error) {
	doc, err := gltf.Open(scenePath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrDecode, scenePath, err)
	}
	if opts.Source == "" {
		opts.Source = scenePath
	}
	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(scenePath), filepath.Ext(scenePath))
	}
	return BakeDocument(doc, opts)
}

// BakeDocument extracts a skeleton from an already parsed scene.
func BakeDocument(doc *gltf.Document, opts Options) (*Asset, error) {
	a := &Asset{}

	nodes, err := flattenNodes(doc)
	if err != nil {
		return nil, err
	}
	a.Nodes = nodes

	if len(doc.Skins) > 1 {
		a.warnf("scene has %d skins, only the first is baked", len(doc.Skins))
	}
	if len(doc.Skins) > 0 {
		skin, err := convertSkin(doc, 0, a.Nodes)
		switch {
		case errors.Is(err, ErrEmptySkin):
			a.warnf("skin 0 (%q) has no joints, skipped", skin.Name)
		case err != nil:
			return nil, err
		default:
			a.Skins = append(a.Skins, skin)
		}
	}

	for i, anim := range doc.Animations {
		clip, err := a.convertAnimation(doc, i, anim)
		if err != nil {
			return nil, err
		}
		if len(clip.Channels) == 0 {
			a.warnf("animation %d (%q) has no supported channels, dropped", i, clip.Name)
			continue
		}
		a.Animations = append(a.Animations, clip)
	}

	name := encoding.NameOr(encoding.NormalizeName(opts.Name), "skeleton")
	source := encoding.NormalizePath(opts.Source)
	a.Metadata = Metadata{
		Name:           name,
		AssetID:        container.AssetID(source, name),
		NodeCount:      len(a.Nodes),
		SkinCount:      len(a.Skins),
		AnimationCount: len(a.Animations),
		Source:         source,
		Compression:    container.CompressionNone,
	}

	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return a, nil
}

func (a *Asset) warnf(format string, args ...any) {
	a.Warnings = append(a.Warnings, fmt.Sprintf(format, args...))
}

// flattenNodes copies the scene nodes index for index and derives parent links from the
// child lists.
func flattenNodes(doc *gltf.Document) ([]Node, error) {
	nodes := make([]Node, len(doc.Nodes))
	for i, src := range doc.Nodes {
		n := NewNode(encoding.NormalizeName(src.Name))
		n.Children = append([]int(nil), src.Children...)
		if src.Mesh != nil {
			n.Mesh = *src.Mesh
		}

		var m math.Mat4
		for k, v := range src.Matrix {
			m[k] = float32(v)
		}
		if m != (math.Mat4{}) && !m.IsIdentity() {
			n.HasMatrix = true
			n.Matrix = m
		} else {
			n.Translation = math.Vec3FromArray(vec3f(src.TranslationOrDefault()))
			n.Rotation = math.QuatFromArray(vec4f(src.RotationOrDefault()))
			n.Scale = math.Vec3FromArray(vec3f(src.ScaleOrDefault()))
		}
		nodes[i] = n
	}

	if err := DeriveParents(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func vec3f(v [3]float64) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

func vec4f(v [4]float64) [4]float32 {
	return [4]float32{float32(v[0]), float32(v[1]), float32(v[2]), float32(v[3])}
}

// DeriveParents sets every node's Parent from the child lists. A child listed by two
// parents, an out-of-range child or a cycle is ErrDecode.
func DeriveParents(nodes []Node) error {
	for i := range nodes {
		nodes[i].Parent = None
	}
	for i := range nodes {
		for _, c := range nodes[i].Children {
			if c < 0 || c >= len(nodes) {
				return fmt.Errorf("%w: node %d has child %d out of range", ErrDecode, i, c)
			}
			if nodes[c].Parent != None {
				return fmt.Errorf("%w: node %d is a child of both %d and %d", ErrDecode, c, nodes[c].Parent, i)
			}
			nodes[c].Parent = i
		}
	}
	if err := checkAcyclic(nodes); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// InferSkeletonRoot walks up the parent links from the first joint for as long as the
// parent is itself a joint. The last joint reached is the skeleton root.
func InferSkeletonRoot(nodes []Node, joints []int) (int, error) {
	if len(joints) == 0 {
		return None, ErrEmptySkin
	}
	inSet := make(map[int]bool, len(joints))
	for _, j := range joints {
		if j < 0 || j >= len(nodes) {
			return None, fmt.Errorf("%w: joint %d out of range", ErrDecode, j)
		}
		inSet[j] = true
	}

	root := joints[0]
	for steps := 0; steps < len(nodes); steps++ {
		p := nodes[root].Parent
		if p == None || !inSet[p] {
			return root, nil
		}
		root = p
	}
	return None, fmt.Errorf("%w: cycle above joint %d", ErrDecode, joints[0])
}

func convertSkin(doc *gltf.Document, index int, nodes []Node) (Skin, error) {
	src := doc.Skins[index]
	skin := Skin{
		Name:     encoding.NormalizeName(src.Name),
		MeshNode: None,
		Joints:   append([]int(nil), src.Joints...),
	}

	root, err := InferSkeletonRoot(nodes, skin.Joints)
	if err != nil {
		return skin, fmt.Errorf("skin %d: %w", index, err)
	}
	skin.Skeleton = root

	for i, n := range doc.Nodes {
		if n.Skin != nil && *n.Skin == index {
			skin.MeshNode = i
			break
		}
	}

	if src.InverseBindMatrices == nil {
		skin.InverseBindMatrices = make([]math.Mat4, len(skin.Joints))
		for i := range skin.InverseBindMatrices {
			skin.InverseBindMatrices[i] = math.Identity()
		}
		return skin, nil
	}

	mats, err := readMatrices(doc, *src.InverseBindMatrices)
	if err != nil {
		return skin, fmt.Errorf("%w: skin %d inverse bind matrices: %w", ErrDecode, index, err)
	}
	if len(mats) != len(skin.Joints) {
		return skin, fmt.Errorf("%w: skin %d has %d inverse bind matrices for %d joints", ErrDecode, index, len(mats), len(skin.Joints))
	}
	skin.InverseBindMatrices = mats
	return skin, nil
}

func accessor(doc *gltf.Document, idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", idx)
	}
	return doc.Accessors[idx], nil
}

// readMatrices reads a MAT4 float accessor. Each element is four columns, which is
// already the column-major order of math.Mat4.
func readMatrices(doc *gltf.Document, idx int) ([]math.Mat4, error) {
	acr, err := accessor(doc, idx)
	if err != nil {
		return nil, err
	}
	data, err := modeler.ReadAccessor(doc, acr, nil)
	if err != nil {
		return nil, err
	}
	cols, ok := data.([][4][4]float32)
	if !ok {
		return nil, fmt.Errorf("expected float MAT4 data, got %T", data)
	}
	out := make([]math.Mat4, len(cols))
	for i, m := range cols {
		for c := 0; c < 4; c++ {
			for r := 0; r < 4; r++ {
				out[i][c*4+r] = m[c][r]
			}
		}
	}
	return out, nil
}

func (a *Asset) convertAnimation(doc *gltf.Document, index int, src *gltf.Animation) (Animation, error) {
	clip := Animation{Name: encoding.NameOr(encoding.NormalizeName(src.Name), fmt.Sprintf("animation%d", index))}
	remap := make(map[int]int)

	for ci, ch := range src.Channels {
		if ch.Target.Node == nil {
			a.warnf("animation %q channel %d has no target node, dropped", clip.Name, ci)
			continue
		}
		node := *ch.Target.Node
		if node < 0 || node >= len(doc.Nodes) {
			a.warnf("animation %q channel %d targets node %d out of range, dropped", clip.Name, ci, node)
			continue
		}

		var path Path
		switch ch.Target.Path {
		case gltf.TRSTranslation:
			path = PathTranslation
		case gltf.TRSRotation:
			path = PathRotation
		case gltf.TRSScale:
			path = PathScale
		default:
			a.warnf("animation %q channel %d targets unsupported property %v, dropped", clip.Name, ci, ch.Target.Path)
			continue
		}

		if ch.Sampler < 0 || ch.Sampler >= len(src.Samplers) {
			return clip, fmt.Errorf("%w: animation %q channel %d sampler %d out of range", ErrDecode, clip.Name, ci, ch.Sampler)
		}

		si, ok := remap[ch.Sampler]
		if !ok {
			s, err := convertSampler(doc, src.Samplers[ch.Sampler], path.Components())
			if err != nil {
				a.warnf("animation %q channel %d: %v, dropped", clip.Name, ci, err)
				continue
			}
			si = len(clip.Samplers)
			clip.Samplers = append(clip.Samplers, s)
			remap[ch.Sampler] = si
		}
		if clip.Samplers[si].Components != path.Components() {
			a.warnf("animation %q channel %d shares a sampler across %s and another property, dropped", clip.Name, ci, path)
			continue
		}

		clip.Channels = append(clip.Channels, Channel{Node: node, Path: path, Sampler: si})
	}
	return clip, nil
}

func convertSampler(doc *gltf.Document, src *gltf.AnimationSampler, components int) (Sampler, error) {
	s := Sampler{Components: components}
	switch src.Interpolation {
	case gltf.InterpolationLinear:
		s.Interpolation = InterpolationLinear
	case gltf.InterpolationStep:
		s.Interpolation = InterpolationStep
	case gltf.InterpolationCubicSpline:
		s.Interpolation = InterpolationCubicSpline
	default:
		return s, fmt.Errorf("unknown interpolation %v", src.Interpolation)
	}

	in, err := accessor(doc, src.Input)
	if err != nil {
		return s, err
	}
	data, err := modeler.ReadAccessor(doc, in, nil)
	if err != nil {
		return s, fmt.Errorf("reading input: %w", err)
	}
	times, ok := data.([]float32)
	if !ok {
		return s, fmt.Errorf("input is %T, want float scalars", data)
	}
	s.Input = times

	out, err := accessor(doc, src.Output)
	if err != nil {
		return s, err
	}
	data, err = modeler.ReadAccessor(doc, out, nil)
	if err != nil {
		return s, fmt.Errorf("reading output: %w", err)
	}
	switch v := data.(type) {
	case [][3]float32:
		if components != 3 {
			return s, fmt.Errorf("output is vec3, want vec%d", components)
		}
		for _, e := range v {
			s.Output = append(s.Output, e[:]...)
		}
	case [][4]float32:
		if components != 4 {
			return s, fmt.Errorf("output is vec4, want vec%d", components)
		}
		for _, e := range v {
			s.Output = append(s.Output, e[:]...)
		}
	default:
		return s, fmt.Errorf("output is %T, want float vectors", data)
	}

	if err := s.validate(); err != nil {
		return s, err
	}
	return s, nil
}
