package skeleton

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/kiln/pkg/container"
	"github.com/Faultbox/kiln/pkg/math"
)

// chain builds n nodes where node i is the only child of node i-1.
func chain(n int) []Node {
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = NewNode("")
		if i+1 < n {
			nodes[i].Children = []int{i + 1}
		}
	}
	return nodes
}

func TestInferSkeletonRoot(t *testing.T) {
	nodes := chain(5)
	require.NoError(t, DeriveParents(nodes))

	tests := []struct {
		name   string
		joints []int
		want   int
	}{
		{"shallowest first", []int{2, 3, 4}, 2},
		{"deepest first", []int{4, 3, 2}, 2},
		{"single joint", []int{3}, 3},
		{"whole chain", []int{4, 0, 1, 2, 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferSkeletonRoot(nodes, tt.joints)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := InferSkeletonRoot(nodes, nil)
	assert.ErrorIs(t, err, ErrEmptySkin)

	_, err = InferSkeletonRoot(nodes, []int{9})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDeriveParents(t *testing.T) {
	nodes := chain(3)
	nodes[2].Parent = 0 // stale source data is ignored
	require.NoError(t, DeriveParents(nodes))
	assert.Equal(t, []int{None, 0, 1}, []int{nodes[0].Parent, nodes[1].Parent, nodes[2].Parent})

	shared := chain(3)
	shared[0].Children = []int{1, 2}
	shared[1].Children = []int{2}
	assert.ErrorIs(t, DeriveParents(shared), ErrDecode)

	cyclic := chain(3)
	cyclic[2].Children = []int{1}
	cyclic[0].Children = nil
	assert.ErrorIs(t, DeriveParents(cyclic), ErrDecode)

	outOfRange := chain(2)
	outOfRange[1].Children = []int{5}
	assert.ErrorIs(t, DeriveParents(outOfRange), ErrDecode)
}

// riggedScene is a small character: root -> hip -> knee, plus a mesh node carrying the
// skin, one clip with a rotation, a stepped translation and a weights channel.
func riggedScene(t *testing.T) *gltf.Document {
	t.Helper()
	doc := gltf.NewDocument()

	doc.Nodes = []*gltf.Node{
		{Name: "root", Children: []int{1, 3}, Matrix: [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 5, 0, 0, 1}},
		{Name: "hip", Children: []int{2}},
		{Name: "knee", Translation: [3]float64{0, 1, 0}},
		{Name: "body", Skin: gltf.Index(0)},
	}

	ibm := modeler.WriteAccessor(doc, gltf.TargetNone, [][4][4]float32{
		{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}},
		{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, -1, 0, 1}},
	})
	doc.Skins = []*gltf.Skin{
		{Name: "body", Joints: []int{1, 2}, InverseBindMatrices: gltf.Index(ibm)},
		{Name: "extra", Joints: []int{2}},
	}

	rotIn := modeler.WriteAccessor(doc, gltf.TargetNone, []float32{0, 1})
	rotOut := modeler.WriteAccessor(doc, gltf.TargetNone, [][4]float32{{0, 0, 0, 1}, {0, 0, 0.7071068, 0.7071068}})
	posIn := modeler.WriteAccessor(doc, gltf.TargetNone, []float32{0, 0.5, 2})
	posOut := modeler.WriteAccessor(doc, gltf.TargetNone, [][3]float32{{0, 0, 0}, {0, 1, 0}, {0, 2, 0}})

	doc.Animations = []*gltf.Animation{{
		Name: "walk",
		Samplers: []*gltf.AnimationSampler{
			{Input: rotIn, Output: rotOut, Interpolation: gltf.InterpolationLinear},
			{Input: posIn, Output: posOut, Interpolation: gltf.InterpolationStep},
		},
		Channels: []*gltf.AnimationChannel{
			{Sampler: 0, Target: gltf.AnimationChannelTarget{Node: gltf.Index(2), Path: gltf.TRSRotation}},
			{Sampler: 1, Target: gltf.AnimationChannelTarget{Node: gltf.Index(1), Path: gltf.TRSTranslation}},
			{Sampler: 0, Target: gltf.AnimationChannelTarget{Node: gltf.Index(2), Path: gltf.TRSWeights}},
		},
	}}
	return doc
}

func TestBakeDocument(t *testing.T) {
	a, err := BakeDocument(riggedScene(t), Options{Name: "hero", Source: "chars/hero.glb"})
	require.NoError(t, err)

	require.Len(t, a.Nodes, 4)
	assert.Equal(t, []int{None, 0, 1, 0}, []int{a.Nodes[0].Parent, a.Nodes[1].Parent, a.Nodes[2].Parent, a.Nodes[3].Parent})
	assert.True(t, a.Nodes[0].HasMatrix)
	assert.Equal(t, math.Translate(5, 0, 0), a.Nodes[0].Matrix)
	assert.False(t, a.Nodes[2].HasMatrix)
	assert.Equal(t, math.Vec3{Y: 1}, a.Nodes[2].Translation)
	assert.Equal(t, math.QuatIdentity(), a.Nodes[2].Rotation)
	assert.Equal(t, math.Vec3{X: 1, Y: 1, Z: 1}, a.Nodes[2].Scale)

	require.Len(t, a.Skins, 1)
	skin := a.Skins[0]
	assert.Equal(t, 1, skin.Skeleton)
	assert.Equal(t, 3, skin.MeshNode)
	assert.Equal(t, []int{1, 2}, skin.Joints)
	require.Len(t, skin.InverseBindMatrices, 2)
	assert.Equal(t, math.Translate(0, -1, 0), skin.InverseBindMatrices[1])

	require.Len(t, a.Animations, 1)
	anim := a.Animations[0]
	assert.Equal(t, "walk", anim.Name)
	require.Len(t, anim.Channels, 2)
	assert.Equal(t, Channel{Node: 2, Path: PathRotation, Sampler: 0}, anim.Channels[0])
	assert.Equal(t, Channel{Node: 1, Path: PathTranslation, Sampler: 1}, anim.Channels[1])
	assert.Equal(t, InterpolationStep, anim.Samplers[1].Interpolation)
	assert.Equal(t, float32(2), anim.Duration())

	// Second skin and the weights channel are reported, not fatal.
	assert.Len(t, a.Warnings, 2)

	assert.Equal(t, "hero", a.Metadata.Name)
	assert.Equal(t, "chars/hero.glb", a.Metadata.Source)
	assert.Equal(t, container.AssetID("chars/hero.glb", "hero"), a.Metadata.AssetID)
	assert.True(t, a.HasRig())
}

func TestBakeEmptySkin(t *testing.T) {
	doc := riggedScene(t)
	doc.Skins = []*gltf.Skin{{Name: "empty"}}

	// Only the skin is dropped; the hierarchy and clips still bake.
	a, err := BakeDocument(doc, Options{})
	require.NoError(t, err)
	assert.Empty(t, a.Skins)
	assert.Len(t, a.Nodes, 4)
	require.Len(t, a.Animations, 1)
	assert.Len(t, a.Animations[0].Channels, 2)
	assert.True(t, a.HasRig())
	assert.Contains(t, a.Warnings, `skin 0 ("empty") has no joints, skipped`)
	assert.Zero(t, a.Metadata.SkinCount)
}

func TestBakeEmptySkinWithoutClips(t *testing.T) {
	doc := riggedScene(t)
	doc.Skins = []*gltf.Skin{{Name: "empty"}}
	doc.Animations = nil

	a, err := BakeDocument(doc, Options{})
	require.NoError(t, err)
	assert.False(t, a.HasRig())
}

func TestFlattenNodesConvertsTransforms(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Nodes = []*gltf.Node{
		{Name: "a", Translation: [3]float64{1, 2, 3}, Rotation: [4]float64{0, 0, 0.7071067811865476, 0.7071067811865476}, Scale: [3]float64{2, 2, 2}},
		{Name: "b"},
	}

	nodes, err := flattenNodes(doc)
	require.NoError(t, err)
	assert.False(t, nodes[0].HasMatrix)
	assert.Equal(t, math.Vec3{X: 1, Y: 2, Z: 3}, nodes[0].Translation)
	assert.InDelta(t, 0.7071068, nodes[0].Rotation.Z, 1e-6)
	assert.InDelta(t, 0.7071068, nodes[0].Rotation.W, 1e-6)
	assert.Equal(t, math.Vec3{X: 2, Y: 2, Z: 2}, nodes[0].Scale)

	// Unset transforms fall back to identity.
	assert.Equal(t, math.Vec3{X: 1, Y: 1, Z: 1}, nodes[1].Scale)
	assert.Equal(t, math.QuatIdentity(), nodes[1].Rotation)
}

func TestBakeInverseBindCountMismatch(t *testing.T) {
	doc := riggedScene(t)
	doc.Skins[0].Joints = []int{0, 1, 2}

	_, err := BakeDocument(doc, Options{})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestBakeMissingInverseBindDefaultsToIdentity(t *testing.T) {
	doc := riggedScene(t)
	doc.Skins[0].InverseBindMatrices = nil

	a, err := BakeDocument(doc, Options{})
	require.NoError(t, err)
	for _, m := range a.Skins[0].InverseBindMatrices {
		assert.True(t, m.IsIdentity())
	}
}

func TestBakeDropsInvalidChannels(t *testing.T) {
	doc := riggedScene(t)
	doc.Animations[0].Channels = append(doc.Animations[0].Channels,
		&gltf.AnimationChannel{Sampler: 0, Target: gltf.AnimationChannelTarget{Node: gltf.Index(42), Path: gltf.TRSRotation}},
		&gltf.AnimationChannel{Sampler: 0, Target: gltf.AnimationChannelTarget{Path: gltf.TRSRotation}},
		// Rotation sampler cannot drive a vec3 property.
		&gltf.AnimationChannel{Sampler: 0, Target: gltf.AnimationChannelTarget{Node: gltf.Index(1), Path: gltf.TRSScale}},
	)

	a, err := BakeDocument(doc, Options{})
	require.NoError(t, err)
	assert.Len(t, a.Animations[0].Channels, 2)
	assert.Len(t, a.Warnings, 5)
}

func TestBakeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hero.glb")
	require.NoError(t, gltf.SaveBinary(riggedScene(t), path))

	a, err := Bake(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hero", a.Metadata.Name)
	assert.Len(t, a.Skins, 1)

	_, err = Bake(filepath.Join(t.TempDir(), "nope.glb"), Options{})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestContainerRoundTrip(t *testing.T) {
	a, err := BakeDocument(riggedScene(t), Options{Name: "hero"})
	require.NoError(t, err)

	dir := t.TempDir()
	for _, mode := range []container.Compression{container.CompressionNone, container.CompressionLZ4} {
		t.Run(string(mode), func(t *testing.T) {
			path := filepath.Join(dir, string(mode), "hero.skel")
			require.NoError(t, a.Write(path, mode))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, a.Nodes, got.Nodes)
			assert.Equal(t, a.Skins, got.Skins)
			assert.Equal(t, a.Animations, got.Animations)

			m := got.Metadata
			assert.Equal(t, mode, m.Compression)
			assert.Equal(t, 4, m.NodeCount)
			assert.Equal(t, 1, m.SkinCount)
			assert.Equal(t, 1, m.AnimationCount)

			nodes, skins, anims := a.MarshalSections()
			assert.Equal(t, len(nodes), m.NodesSize)
			assert.Equal(t, len(skins), m.SkinsSize)
			assert.Equal(t, len(anims), m.AnimationsSize)
		})
	}
}

func TestFromContainerRejectsBadSections(t *testing.T) {
	a, err := BakeDocument(riggedScene(t), Options{})
	require.NoError(t, err)

	c, err := a.Container(container.CompressionNone)
	require.NoError(t, err)
	c.Payload = c.Payload[:len(c.Payload)-1]
	_, err = FromContainer(c)
	assert.ErrorIs(t, err, container.ErrCorrupt)

	// A joint pointing past the node array survives decoding but fails validation.
	a.Skins[0].Joints[1] = 99
	c, err = a.Container(container.CompressionNone)
	require.NoError(t, err)
	_, err = FromContainer(c)
	assert.ErrorIs(t, err, container.ErrCorrupt)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUnmarshalTruncatedSection(t *testing.T) {
	a, err := BakeDocument(riggedScene(t), Options{})
	require.NoError(t, err)
	nodes, skins, anims := a.MarshalSections()

	var got Asset
	err = got.UnmarshalSections(nodes[:len(nodes)-3], skins, anims)
	assert.ErrorIs(t, err, ErrTruncatedSection)

	err = got.UnmarshalSections(nodes, append(skins, 0), anims)
	assert.Error(t, err)
}

func TestLongNamesTruncateOnRuneBoundary(t *testing.T) {
	name := strings.Repeat("a", maxNameLength-1) + "é"
	require.Len(t, name, maxNameLength+1)

	got := truncateName(name)
	assert.Equal(t, strings.Repeat("a", maxNameLength-1), got)
	assert.True(t, utf8.ValidString(got))

	a, err := BakeDocument(riggedScene(t), Options{})
	require.NoError(t, err)
	a.Nodes[0].Name = name
	nodes, skins, anims := a.MarshalSections()

	var back Asset
	require.NoError(t, back.UnmarshalSections(nodes, skins, anims))
	assert.Equal(t, got, back.Nodes[0].Name)
}

func TestValidate(t *testing.T) {
	valid := func() *Asset {
		a, err := BakeDocument(riggedScene(t), Options{})
		require.NoError(t, err)
		return a
	}

	tests := []struct {
		name   string
		mutate func(a *Asset)
	}{
		{"asymmetric parent", func(a *Asset) { a.Nodes[2].Parent = 0 }},
		{"child out of range", func(a *Asset) { a.Nodes[2].Children = []int{10} }},
		{"ibm count", func(a *Asset) { a.Skins[0].InverseBindMatrices = a.Skins[0].InverseBindMatrices[:1] }},
		{"channel node", func(a *Asset) { a.Animations[0].Channels[0].Node = 7 }},
		{"channel sampler", func(a *Asset) { a.Animations[0].Channels[0].Sampler = 5 }},
		{"times not increasing", func(a *Asset) { a.Animations[0].Samplers[0].Input = []float32{1, 1} }},
		{"output length", func(a *Asset) { a.Animations[0].Samplers[1].Output = a.Animations[0].Samplers[1].Output[:3] }},
		{"component mismatch", func(a *Asset) { a.Animations[0].Channels[0].Path = PathScale }},
	}
	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(a)
			assert.ErrorIs(t, a.Validate(), ErrInvalid)
		})
	}

	a := valid()
	a.Skins[0].Joints = nil
	assert.ErrorIs(t, a.Validate(), ErrEmptySkin)
}
