package mesh

import "github.com/Faultbox/kiln/pkg/math"

// Bounds is an axis-aligned box (origin and half extents) plus the tightest sphere
// around origin that contains every vertex.
type Bounds struct {
	Origin  [3]float32 `yaml:"origin,flow"`
	Radius  float32    `yaml:"radius"`
	Extents [3]float32 `yaml:"extents,flow"`
}

// ComputeBounds returns the bounds of positions. The radius is the maximum distance from
// the box center to any position, found in a second pass. No positions yields a zero bound.
func ComputeBounds(positions [][3]float32) Bounds {
	if len(positions) == 0 {
		return Bounds{}
	}

	lo := math.Vec3FromArray(positions[0])
	hi := lo
	for _, p := range positions[1:] {
		v := math.Vec3FromArray(p)
		lo = lo.Min(v)
		hi = hi.Max(v)
	}

	origin := lo.Add(hi).Scale(0.5)
	extents := hi.Sub(lo).Scale(0.5)

	var radius float32
	for _, p := range positions {
		if d := origin.Distance(math.Vec3FromArray(p)); d > radius {
			radius = d
		}
	}

	return Bounds{
		Origin:  origin.Array(),
		Radius:  radius,
		Extents: extents.Array(),
	}
}
