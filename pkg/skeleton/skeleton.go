// Package skeleton holds the skeletal animation asset model: a node forest, the skin that
// binds a mesh to joints of that forest, and animation clips that drive node transforms.
//
// Nodes reference each other by index into Asset.Nodes. Parents are always derived from
// child lists, never read from source data.
package skeleton

import (
	"errors"
	"fmt"

	"github.com/Faultbox/kiln/pkg/container"
	"github.com/Faultbox/kiln/pkg/math"
)

// Skeleton errors.
var (
	ErrDecode    = errors.New("skeleton decode error")
	ErrEmptySkin = errors.New("skin has no joints")
	ErrInvalid   = errors.New("invalid skeleton")
)

// Version is the SKEL container version written by this package.
const Version = 1

// None marks an absent parent, mesh or node reference.
const None = -1

// Node is one entry of the hierarchy.
type Node struct {
	Name     string
	Parent   int
	Children []int
	Mesh     int

	// HasMatrix marks nodes whose source carried an explicit matrix. It composes after
	// the TRS part, which stays at identity for such nodes unless animated.
	HasMatrix   bool
	Matrix      math.Mat4
	Translation math.Vec3
	Rotation    math.Quat
	Scale       math.Vec3
}

// NewNode returns a root node with an identity transform.
func NewNode(name string) Node {
	return Node{
		Name:     name,
		Parent:   None,
		Mesh:     None,
		Matrix:   math.Identity(),
		Rotation: math.QuatIdentity(),
		Scale:    math.Vec3{X: 1, Y: 1, Z: 1},
	}
}

// Skin binds a mesh to a set of joint nodes.
type Skin struct {
	Name string
	// Skeleton is the inferred skeleton root.
	Skeleton int
	// MeshNode is the node the skinned mesh hangs off, or None.
	MeshNode            int
	Joints              []int
	InverseBindMatrices []math.Mat4
}

// Interpolation is a sampler's keyframe interpolation mode.
type Interpolation uint8

// Interpolation modes.
const (
	InterpolationLinear Interpolation = iota
	InterpolationStep
	InterpolationCubicSpline
)

func (i Interpolation) String() string {
	switch i {
	case InterpolationLinear:
		return "linear"
	case InterpolationStep:
		return "step"
	case InterpolationCubicSpline:
		return "cubic-spline"
	}
	return fmt.Sprintf("Interpolation(%d)", uint8(i))
}

// Path is the node property a channel animates.
type Path uint8

// Animated properties.
const (
	PathTranslation Path = iota
	PathRotation
	PathScale
)

func (p Path) String() string {
	switch p {
	case PathTranslation:
		return "translation"
	case PathRotation:
		return "rotation"
	case PathScale:
		return "scale"
	}
	return fmt.Sprintf("Path(%d)", uint8(p))
}

// Components returns the number of floats per value of p.
func (p Path) Components() int {
	if p == PathRotation {
		return 4
	}
	return 3
}

// Sampler maps keyframe times to values.
//
// Output is flat: Components floats per value. Cubic-spline samplers store three values
// per keyframe (in-tangent, value, out-tangent).
type Sampler struct {
	Interpolation Interpolation
	Components    int
	Input         []float32
	Output        []float32
}

// ValuesPerKey returns how many values each keyframe carries.
func (s *Sampler) ValuesPerKey() int {
	if s.Interpolation == InterpolationCubicSpline {
		return 3
	}
	return 1
}

// Channel connects a sampler to a node property.
type Channel struct {
	Node    int
	Path    Path
	Sampler int
}

// Animation is one named clip.
type Animation struct {
	Name     string
	Samplers []Sampler
	Channels []Channel
}

// Duration returns the largest keyframe time of the clip.
func (a *Animation) Duration() float32 {
	var d float32
	for _, s := range a.Samplers {
		if n := len(s.Input); n > 0 && s.Input[n-1] > d {
			d = s.Input[n-1]
		}
	}
	return d
}

// Metadata is the YAML document stored in a SKEL container.
type Metadata struct {
	Name           string                `yaml:"name"`
	AssetID        string                `yaml:"asset_id"`
	NodeCount      int                   `yaml:"node_count"`
	SkinCount      int                   `yaml:"skin_count"`
	AnimationCount int                   `yaml:"animation_count"`
	NodesSize      int                   `yaml:"nodes_size"`
	SkinsSize      int                   `yaml:"skins_size"`
	AnimationsSize int                   `yaml:"animations_size"`
	Source         string                `yaml:"source"`
	Compression    container.Compression `yaml:"compression"`
}

// Asset is a complete skeleton: hierarchy, at most one skin and any number of clips.
type Asset struct {
	Metadata   Metadata
	Nodes      []Node
	Skins      []Skin
	Animations []Animation

	// Warnings collects non-fatal problems found while baking.
	Warnings []string
}

// HasRig reports whether the asset carries anything a runtime needs beyond the plain
// node hierarchy.
func (a *Asset) HasRig() bool {
	return len(a.Skins) > 0 || len(a.Animations) > 0
}

func (a *Asset) validNode(i int) bool {
	return i >= 0 && i < len(a.Nodes)
}

// Validate checks the structural invariants: a symmetric, acyclic parent/child forest,
// in-range references, one inverse bind matrix per joint and well-formed samplers.
func (a *Asset) Validate() error {
	for i, n := range a.Nodes {
		if n.Parent != None {
			if !a.validNode(n.Parent) {
				return fmt.Errorf("%w: node %d parent %d out of range", ErrInvalid, i, n.Parent)
			}
			if !contains(a.Nodes[n.Parent].Children, i) {
				return fmt.Errorf("%w: node %d names parent %d which does not list it", ErrInvalid, i, n.Parent)
			}
		}
		for _, c := range n.Children {
			if !a.validNode(c) {
				return fmt.Errorf("%w: node %d child %d out of range", ErrInvalid, i, c)
			}
			if a.Nodes[c].Parent != i {
				return fmt.Errorf("%w: node %d lists child %d whose parent is %d", ErrInvalid, i, c, a.Nodes[c].Parent)
			}
		}
		if n.Mesh < None {
			return fmt.Errorf("%w: node %d mesh %d", ErrInvalid, i, n.Mesh)
		}
	}
	if err := checkAcyclic(a.Nodes); err != nil {
		return err
	}

	for si, s := range a.Skins {
		if len(s.Joints) == 0 {
			return fmt.Errorf("skin %d: %w", si, ErrEmptySkin)
		}
		for _, j := range s.Joints {
			if !a.validNode(j) {
				return fmt.Errorf("%w: skin %d joint %d out of range", ErrInvalid, si, j)
			}
		}
		if len(s.InverseBindMatrices) != len(s.Joints) {
			return fmt.Errorf("%w: skin %d has %d inverse bind matrices for %d joints", ErrInvalid, si, len(s.InverseBindMatrices), len(s.Joints))
		}
		if !a.validNode(s.Skeleton) {
			return fmt.Errorf("%w: skin %d skeleton root %d out of range", ErrInvalid, si, s.Skeleton)
		}
		if s.MeshNode != None && !a.validNode(s.MeshNode) {
			return fmt.Errorf("%w: skin %d mesh node %d out of range", ErrInvalid, si, s.MeshNode)
		}
	}

	for ai := range a.Animations {
		anim := &a.Animations[ai]
		for si := range anim.Samplers {
			if err := anim.Samplers[si].validate(); err != nil {
				return fmt.Errorf("%w: animation %d sampler %d: %w", ErrInvalid, ai, si, err)
			}
		}
		for ci, ch := range anim.Channels {
			if !a.validNode(ch.Node) {
				return fmt.Errorf("%w: animation %d channel %d node %d out of range", ErrInvalid, ai, ci, ch.Node)
			}
			if ch.Path > PathScale {
				return fmt.Errorf("%w: animation %d channel %d path %d", ErrInvalid, ai, ci, ch.Path)
			}
			if ch.Sampler < 0 || ch.Sampler >= len(anim.Samplers) {
				return fmt.Errorf("%w: animation %d channel %d sampler %d out of range", ErrInvalid, ai, ci, ch.Sampler)
			}
			if anim.Samplers[ch.Sampler].Components != ch.Path.Components() {
				return fmt.Errorf("%w: animation %d channel %d animates %s with %d-component values", ErrInvalid, ai, ci, ch.Path, anim.Samplers[ch.Sampler].Components)
			}
		}
	}
	return nil
}

func (s *Sampler) validate() error {
	if s.Interpolation > InterpolationCubicSpline {
		return fmt.Errorf("interpolation %d", s.Interpolation)
	}
	if s.Components != 3 && s.Components != 4 {
		return fmt.Errorf("%d components per value", s.Components)
	}
	if len(s.Input) == 0 {
		return fmt.Errorf("no keyframes")
	}
	for i := 1; i < len(s.Input); i++ {
		if !(s.Input[i] > s.Input[i-1]) {
			return fmt.Errorf("keyframe times not strictly increasing at %d", i)
		}
	}
	if want := len(s.Input) * s.ValuesPerKey() * s.Components; len(s.Output) != want {
		return fmt.Errorf("%d output floats, want %d", len(s.Output), want)
	}
	return nil
}

// checkAcyclic walks up from every node; a walk longer than the node count means a cycle.
func checkAcyclic(nodes []Node) error {
	for i := range nodes {
		steps := 0
		for p := nodes[i].Parent; p != None; p = nodes[p].Parent {
			steps++
			if steps > len(nodes) || p == i {
				return fmt.Errorf("%w: node %d is its own ancestor", ErrInvalid, i)
			}
		}
	}
	return nil
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
