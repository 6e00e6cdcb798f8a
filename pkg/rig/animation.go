package rig

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/Faultbox/kiln/pkg/math"
	"github.com/Faultbox/kiln/pkg/skeleton"
)

// ApplyAnimation samples every channel of clip anim at time t (seconds) and writes the
// results into the animated nodes' local transforms. Times outside the clip clamp to the
// first or last keyframe.
func (g *Graph) ApplyAnimation(anim int, t float32) error {
	if anim < 0 || anim >= len(g.asset.Animations) {
		return fmt.Errorf("animation %d out of range [0, %d)", anim, len(g.asset.Animations))
	}
	a := &g.asset.Animations[anim]
	for _, ch := range a.Channels {
		v := Sample(&a.Samplers[ch.Sampler], t, ch.Path == skeleton.PathRotation)
		n := &g.nodes[ch.Node]
		switch ch.Path {
		case skeleton.PathTranslation:
			n.translation = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
		case skeleton.PathRotation:
			n.rotation = math.QuatFromArray(v)
		case skeleton.PathScale:
			n.scale = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
		}
	}
	return nil
}

// FindAnimation returns the index of the clip called name, or -1.
func (g *Graph) FindAnimation(name string) int {
	for i := range g.asset.Animations {
		if g.asset.Animations[i].Name == name {
			return i
		}
	}
	return -1
}

// WrapTime maps t into [0, duration) for looping playback.
func WrapTime(t, duration float32) float32 {
	if duration <= 0 {
		return 0
	}
	t = math32.Mod(t, duration)
	if t < 0 {
		t += duration
	}
	return t
}

// Sample evaluates s at time t. Only the first s.Components values of the result are
// meaningful. rotation selects spherical interpolation and renormalization of quaternions.
func Sample(s *skeleton.Sampler, t float32, rotation bool) [4]float32 {
	keys := len(s.Input)
	if keys == 0 {
		return [4]float32{}
	}
	cubic := s.Interpolation == skeleton.InterpolationCubicSpline

	if t <= s.Input[0] || keys == 1 {
		return keyValue(s, 0, cubic)
	}
	if t >= s.Input[keys-1] {
		return keyValue(s, keys-1, cubic)
	}

	// Find surrounding keyframes (inputs are strictly increasing).
	k := 0
	for k+1 < keys && s.Input[k+1] <= t {
		k++
	}
	t0, t1 := s.Input[k], s.Input[k+1]
	dt := t1 - t0
	u := (t - t0) / dt

	switch s.Interpolation {
	case skeleton.InterpolationStep:
		return keyValue(s, k, false)
	case skeleton.InterpolationCubicSpline:
		v := hermite(s, k, u, dt)
		if rotation {
			v = math.QuatFromArray(v).Normalize().Array()
		}
		return v
	}

	a := keyValue(s, k, false)
	b := keyValue(s, k+1, false)
	if rotation {
		return math.QuatFromArray(a).Slerp(math.QuatFromArray(b), u).Array()
	}
	var out [4]float32
	for c := 0; c < s.Components; c++ {
		out[c] = a[c] + u*(b[c]-a[c])
	}
	return out
}

// value returns the j-th stored value of s (not the j-th keyframe for cubic samplers).
func value(s *skeleton.Sampler, j int) [4]float32 {
	var out [4]float32
	copy(out[:s.Components], s.Output[j*s.Components:])
	return out
}

func keyValue(s *skeleton.Sampler, k int, cubic bool) [4]float32 {
	if cubic {
		return value(s, 3*k+1)
	}
	return value(s, k)
}

// hermite evaluates the cubic spline segment starting at keyframe k.
func hermite(s *skeleton.Sampler, k int, u, dt float32) [4]float32 {
	v0 := value(s, 3*k+1)
	b0 := value(s, 3*k+2)
	a1 := value(s, 3*(k+1))
	v1 := value(s, 3*(k+1)+1)

	u2 := u * u
	u3 := u2 * u
	h00 := 2*u3 - 3*u2 + 1
	h10 := u3 - 2*u2 + u
	h01 := -2*u3 + 3*u2
	h11 := u3 - u2

	var out [4]float32
	for c := 0; c < s.Components; c++ {
		out[c] = h00*v0[c] + h10*dt*b0[c] + h01*v1[c] + h11*dt*a1[c]
	}
	return out
}
