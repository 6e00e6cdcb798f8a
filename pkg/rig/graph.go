// Package rig evaluates a loaded skeleton at runtime: it propagates local node transforms
// to world space and produces the joint matrix array consumed by skinning shaders.
//
// A Graph belongs to one skinned object and is not safe for concurrent use. It keeps no
// state between evaluations other than the node poses the caller sets.
package rig

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/Faultbox/kiln/pkg/math"
	"github.com/Faultbox/kiln/pkg/skeleton"
)

// MaxJoints is the largest joint palette a skin can upload. Joints past it are ignored.
const MaxJoints = 128

type node struct {
	parent   int
	children []int

	hasMatrix   bool
	matrix      math.Mat4
	translation math.Vec3
	rotation    math.Quat
	scale       math.Vec3

	world math.Mat4
}

func (n *node) local() math.Mat4 {
	m := math.Compose(n.translation, n.rotation, n.scale)
	if n.hasMatrix {
		m = m.Mul(n.matrix)
	}
	return m
}

// Graph is the runtime node arena built from a skeleton asset.
type Graph struct {
	asset *skeleton.Asset
	nodes []node
	stack []int
}

// NewGraph validates asset and builds a graph in its bind pose.
func NewGraph(asset *skeleton.Asset) (*Graph, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	g := &Graph{
		asset: asset,
		nodes: make([]node, len(asset.Nodes)),
	}
	g.ResetPose()
	return g, nil
}

// Asset returns the skeleton the graph was built from.
func (g *Graph) Asset() *skeleton.Asset { return g.asset }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// ResetPose restores every node's local transform from the asset and clears world
// matrices to identity.
func (g *Graph) ResetPose() {
	for i, src := range g.asset.Nodes {
		g.nodes[i] = node{
			parent:      src.Parent,
			children:    src.Children,
			hasMatrix:   src.HasMatrix,
			matrix:      src.Matrix,
			translation: src.Translation,
			rotation:    src.Rotation,
			scale:       src.Scale,
			world:       math.Identity(),
		}
	}
}

func (g *Graph) check(i int) {
	if i < 0 || i >= len(g.nodes) {
		panic(fmt.Sprintf("rig: node %d out of range [0, %d)", i, len(g.nodes)))
	}
}

// SetTranslation sets a node's local translation.
func (g *Graph) SetTranslation(i int, v math.Vec3) {
	g.check(i)
	g.nodes[i].translation = v
}

// SetRotation sets a node's local rotation.
func (g *Graph) SetRotation(i int, q math.Quat) {
	g.check(i)
	g.nodes[i].rotation = q
}

// SetScale sets a node's local scale.
func (g *Graph) SetScale(i int, v math.Vec3) {
	g.check(i)
	g.nodes[i].scale = v
}

// Local returns a node's local matrix: T * R * S, then the explicit matrix if any.
func (g *Graph) Local(i int) math.Mat4 {
	g.check(i)
	return g.nodes[i].local()
}

// World returns the world matrix computed by the last UpdateWorld covering node i.
func (g *Graph) World(i int) math.Mat4 {
	g.check(i)
	return g.nodes[i].world
}

// WorldPosition returns node i's origin in world space, for attaching props to a joint.
func (g *Graph) WorldPosition(i int) math.Vec3 {
	return g.World(i).TransformVec3(math.Vec3{})
}

// UpdateWorld recomputes world matrices for root and everything below it. The root's
// parent transform is identity, whatever sits above it.
func (g *Graph) UpdateWorld(root int) {
	g.check(root)
	g.nodes[root].world = g.nodes[root].local()

	g.stack = append(g.stack[:0], root)
	for len(g.stack) > 0 {
		p := g.stack[len(g.stack)-1]
		g.stack = g.stack[:len(g.stack)-1]
		parentWorld := g.nodes[p].world
		for _, c := range g.nodes[p].children {
			g.nodes[c].world = parentWorld.Mul(g.nodes[c].local())
			g.stack = append(g.stack, c)
		}
	}
}

// UpdateAll recomputes world matrices for every tree in the forest.
func (g *Graph) UpdateAll() {
	for i := range g.nodes {
		if g.nodes[i].parent == skeleton.None {
			g.UpdateWorld(i)
		}
	}
}

// JointMatrices is the fixed-size joint palette handed to the renderer.
type JointMatrices struct {
	Matrices [MaxJoints]math.Mat4
	Count    int
}

// Slice returns the populated matrices.
func (j *JointMatrices) Slice() []math.Mat4 {
	return j.Matrices[:j.Count]
}

// Bytes returns the populated matrices as column-major little-endian float32s, ready to
// copy into a uniform buffer.
func (j *JointMatrices) Bytes() []byte {
	out := make([]byte, j.Count*64)
	for i, m := range j.Matrices[:j.Count] {
		for k, v := range m {
			binary.LittleEndian.PutUint32(out[i*64+k*4:], gomath.Float32bits(v))
		}
	}
	return out
}

// EvaluateJoints propagates the skin's skeleton from its root and computes
//
//	joint[i] = inverse(world) * world(joint_i) * inverseBind_i
//
// for the first min(len(joints), MaxJoints) joints.
func (g *Graph) EvaluateJoints(skin int, world math.Mat4) JointMatrices {
	var out JointMatrices
	if skin < 0 || skin >= len(g.asset.Skins) {
		return out
	}
	s := &g.asset.Skins[skin]
	g.UpdateWorld(s.Skeleton)

	inv := world.Inverse()
	out.Count = min(len(s.Joints), MaxJoints)
	for i := 0; i < out.Count; i++ {
		out.Matrices[i] = inv.Mul(g.nodes[s.Joints[i]].world).Mul(s.InverseBindMatrices[i])
	}
	return out
}
