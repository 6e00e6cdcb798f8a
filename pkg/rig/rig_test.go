package rig

import (
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/kiln/pkg/math"
	"github.com/Faultbox/kiln/pkg/skeleton"
)

const eps = 1e-5

// armAsset is world -> shoulder -> elbow -> hand, each one unit up from its parent,
// skinned on shoulder, elbow and hand with matching inverse bind matrices.
func armAsset(t *testing.T) *skeleton.Asset {
	t.Helper()
	names := []string{"world", "shoulder", "elbow", "hand"}
	nodes := make([]skeleton.Node, len(names))
	for i, name := range names {
		nodes[i] = skeleton.NewNode(name)
		nodes[i].Translation = math.Vec3{Y: 1}
		if i+1 < len(names) {
			nodes[i].Children = []int{i + 1}
		}
	}
	require.NoError(t, skeleton.DeriveParents(nodes))

	return &skeleton.Asset{
		Nodes: nodes,
		Skins: []skeleton.Skin{{
			Name:     "arm",
			Skeleton: 1,
			MeshNode: skeleton.None,
			Joints:   []int{1, 2, 3},
			InverseBindMatrices: []math.Mat4{
				math.Translate(0, -1, 0),
				math.Translate(0, -2, 0),
				math.Translate(0, -3, 0),
			},
		}},
		Animations: []skeleton.Animation{{
			Name: "raise",
			Samplers: []skeleton.Sampler{
				{Interpolation: skeleton.InterpolationLinear, Components: 3, Input: []float32{0, 2}, Output: []float32{0, 1, 0, 0, 3, 0}},
				{Interpolation: skeleton.InterpolationLinear, Components: 4, Input: []float32{0, 1}, Output: []float32{0, 0, 0, 1, 0, 0, 0.7071068, 0.7071068}},
				{Interpolation: skeleton.InterpolationStep, Components: 3, Input: []float32{0, 1}, Output: []float32{1, 1, 1, 2, 2, 2}},
			},
			Channels: []skeleton.Channel{
				{Node: 2, Path: skeleton.PathTranslation, Sampler: 0},
				{Node: 1, Path: skeleton.PathRotation, Sampler: 1},
				{Node: 3, Path: skeleton.PathScale, Sampler: 2},
			},
		}},
	}
}

func newArm(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(armAsset(t))
	require.NoError(t, err)
	return g
}

func TestBindPoseYieldsIdentityJoints(t *testing.T) {
	g := newArm(t)
	j := g.EvaluateJoints(0, math.Identity())
	require.Equal(t, 3, j.Count)
	for i, m := range j.Slice() {
		assert.True(t, m.ApproxEqual(math.Identity(), eps), "joint %d: %v", i, m)
	}
}

func TestSkeletonRootParentIsIdentity(t *testing.T) {
	g := newArm(t)
	g.SetTranslation(0, math.Vec3{X: 100})
	g.EvaluateJoints(0, math.Identity())

	// The node above the skeleton root does not contribute.
	assert.True(t, g.World(1).ApproxEqual(math.Translate(0, 1, 0), eps))
	assert.True(t, g.World(3).ApproxEqual(math.Translate(0, 3, 0), eps))
}

func TestObjectWorldMatrixIsRemoved(t *testing.T) {
	g := newArm(t)
	j := g.EvaluateJoints(0, math.Translate(3, 0, 0))
	for _, m := range j.Slice() {
		assert.True(t, m.ApproxEqual(math.Translate(-3, 0, 0), eps))
	}
}

func TestPosedJoint(t *testing.T) {
	g := newArm(t)
	g.SetTranslation(3, math.Vec3{Y: 2})

	j := g.EvaluateJoints(0, math.Identity())
	assert.True(t, j.Matrices[0].ApproxEqual(math.Identity(), eps))
	assert.True(t, j.Matrices[2].ApproxEqual(math.Translate(0, 1, 0), eps))
}

func TestEvaluateJointsIdempotent(t *testing.T) {
	g := newArm(t)
	require.NoError(t, g.ApplyAnimation(0, 0.5))
	world := math.Compose(math.Vec3{X: 1, Y: 2, Z: 3}, axisAngle(math.Vec3{Y: 1}, 0.3), math.Vec3{X: 2, Y: 2, Z: 2})

	a := g.EvaluateJoints(0, world)
	b := g.EvaluateJoints(0, world)
	assert.Equal(t, a, b)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestExplicitMatrixComposesAfterTRS(t *testing.T) {
	asset := armAsset(t)
	asset.Nodes[2].HasMatrix = true
	asset.Nodes[2].Matrix = math.Scale(2, 2, 2)
	asset.Nodes[2].Translation = math.Vec3{X: 1}
	g, err := NewGraph(asset)
	require.NoError(t, err)

	// T then M: the translation is not scaled.
	local := g.Local(2)
	assert.True(t, local.ApproxEqual(math.Translate(1, 0, 0).Mul(math.Scale(2, 2, 2)), eps))
	p := local.TransformPoint([3]float32{1, 0, 0})
	assert.InDelta(t, 3, p[0], eps)

	g.UpdateAll()
	// The explicit scale does not move the elbow's own origin.
	pos := g.WorldPosition(2)
	assert.InDelta(t, 1, pos.X, eps)
	assert.InDelta(t, 2, pos.Y, eps)
}

func TestWorldPosition(t *testing.T) {
	g := newArm(t)
	g.UpdateAll()
	assert.InDelta(t, 4, g.WorldPosition(3).Y, eps)

	g.SetRotation(1, axisAngle(math.Vec3{Z: 1}, gomath.Pi/2))
	g.UpdateAll()
	pos := g.WorldPosition(3)
	assert.InDelta(t, -2, pos.X, eps)
	assert.InDelta(t, 2, pos.Y, eps)
	assert.InDelta(t, 0, pos.Z, eps)
}

func axisAngle(axis math.Vec3, angle float64) math.Quat {
	s, c := gomath.Sincos(angle / 2)
	return math.Quat{X: axis.X * float32(s), Y: axis.Y * float32(s), Z: axis.Z * float32(s), W: float32(c)}
}

func TestMaxJoints(t *testing.T) {
	const n = MaxJoints + 40
	nodes := make([]skeleton.Node, n)
	joints := make([]int, n)
	ibm := make([]math.Mat4, n)
	for i := range nodes {
		nodes[i] = skeleton.NewNode("")
		if i+1 < n {
			nodes[i].Children = []int{i + 1}
		}
		joints[i] = i
		ibm[i] = math.Identity()
	}
	require.NoError(t, skeleton.DeriveParents(nodes))

	g, err := NewGraph(&skeleton.Asset{
		Nodes: nodes,
		Skins: []skeleton.Skin{{Skeleton: 0, MeshNode: skeleton.None, Joints: joints, InverseBindMatrices: ibm}},
	})
	require.NoError(t, err)

	j := g.EvaluateJoints(0, math.Identity())
	assert.Equal(t, MaxJoints, j.Count)
	assert.Len(t, j.Bytes(), MaxJoints*64)
}

func TestJointBytesLayout(t *testing.T) {
	var j JointMatrices
	j.Count = 1
	j.Matrices[0] = math.Translate(7, 8, 9)

	b := j.Bytes()
	require.Len(t, b, 64)
	at := func(i int) float32 { return gomath.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	assert.Equal(t, float32(1), at(0))
	assert.Equal(t, float32(7), at(12))
	assert.Equal(t, float32(8), at(13))
	assert.Equal(t, float32(9), at(14))
}

func TestEvaluateUnknownSkin(t *testing.T) {
	g := newArm(t)
	assert.Equal(t, 0, g.EvaluateJoints(5, math.Identity()).Count)
}

func TestNewGraphRejectsInvalidAsset(t *testing.T) {
	asset := armAsset(t)
	asset.Skins[0].InverseBindMatrices = nil
	_, err := NewGraph(asset)
	assert.ErrorIs(t, err, skeleton.ErrInvalid)
}

func TestApplyAnimation(t *testing.T) {
	g := newArm(t)
	require.NoError(t, g.ApplyAnimation(0, 0.5))
	g.UpdateAll()

	// Translation 1/4 of the way from 1 to 3.
	assert.InDelta(t, 1.5, g.Local(2)[13], eps)

	// Rotation halfway to 90 degrees about Z.
	want := axisAngle(math.Vec3{Z: 1}, gomath.Pi/4).ToMat4()
	assert.True(t, math.Translate(0, -1, 0).Mul(g.Local(1)).ApproxEqual(want, 1e-4))

	// Step sampler holds the first value until t = 1.
	assert.InDelta(t, 1, g.Local(3)[0], eps)
	require.NoError(t, g.ApplyAnimation(0, 1))
	assert.InDelta(t, 2, g.Local(3)[0], eps)

	assert.Error(t, g.ApplyAnimation(3, 0))
	assert.Equal(t, 0, g.FindAnimation("raise"))
	assert.Equal(t, -1, g.FindAnimation("jump"))

	g.ResetPose()
	assert.InDelta(t, 1, g.Local(2)[13], eps)
}

func TestSampleClamps(t *testing.T) {
	s := &skeleton.Sampler{Interpolation: skeleton.InterpolationLinear, Components: 3, Input: []float32{1, 2}, Output: []float32{0, 0, 0, 10, 0, 0}}
	assert.Equal(t, float32(0), Sample(s, -5, false)[0])
	assert.Equal(t, float32(10), Sample(s, 99, false)[0])
	assert.InDelta(t, 2.5, Sample(s, 1.25, false)[0], eps)
}

func TestSampleCubicSpline(t *testing.T) {
	// Zero tangents: the segment eases between values and passes the midpoint at u = 0.5.
	s := &skeleton.Sampler{
		Interpolation: skeleton.InterpolationCubicSpline,
		Components:    3,
		Input:         []float32{0, 2},
		Output: []float32{
			0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 4, 4, 4, 0, 0, 0,
		},
	}
	assert.InDelta(t, 2, Sample(s, 1, false)[0], eps)
	assert.InDelta(t, 0.625, Sample(s, 0.5, false)[1], eps)
	assert.Equal(t, float32(4), Sample(s, 3, false)[2])

	// Out-tangent of the first key bends the curve upward.
	s.Output[8] = 2
	assert.Greater(t, Sample(s, 0.5, false)[2], float32(0.625))
}

func TestWrapTime(t *testing.T) {
	assert.InDelta(t, 0.5, WrapTime(2.5, 2), eps)
	assert.InDelta(t, 1.5, WrapTime(-0.5, 2), eps)
	assert.Equal(t, float32(0), WrapTime(3, 0))
}
