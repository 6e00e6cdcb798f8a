package texture

import (
	"fmt"
	"math/bits"
)

// BytesPerTexel is the size of one RGBA8 texel.
const BytesPerTexel = 4

// Level is one tightly packed RGBA8 mip level.
type Level struct {
	Width  int
	Height int
	Pixels []byte
}

// LevelCount returns floor(log2(max(w, h))) + 1.
func LevelCount(width, height int) int {
	m := max(width, height)
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m))
}

// ChainSize returns the byte size of a full mip chain for a w x h base level.
func ChainSize(width, height int) int {
	total := 0
	for range LevelCount(width, height) {
		total += width * height * BytesPerTexel
		width, height = max(1, width/2), max(1, height/2)
	}
	return total
}

// GenerateMips builds the full mip chain for tightly packed RGBA8 pixels, from the base
// level down to 1x1. Each level is a 2x box downsample of the previous one; along an
// axis that is already 1 texel wide, or the odd last column/row, the edge texel is
// reused. Rounding is integer, so the output is bit-reproducible.
func GenerateMips(pixels []byte, width, height int) ([]Level, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mip base size %dx%d", width, height)
	}
	if len(pixels) != width*height*BytesPerTexel {
		return nil, fmt.Errorf("pixel buffer is %d bytes, want %d for %dx%d", len(pixels), width*height*BytesPerTexel, width, height)
	}

	levels := make([]Level, 0, LevelCount(width, height))
	levels = append(levels, Level{Width: width, Height: height, Pixels: pixels})
	for width > 1 || height > 1 {
		next := downsample(levels[len(levels)-1])
		levels = append(levels, next)
		width, height = next.Width, next.Height
	}
	return levels, nil
}

func downsample(src Level) Level {
	w := max(1, src.Width/2)
	h := max(1, src.Height/2)
	dst := Level{Width: w, Height: h, Pixels: make([]byte, w*h*BytesPerTexel)}
	stride := src.Width * BytesPerTexel

	for y := 0; y < h; y++ {
		y0 := 2 * y
		y1 := min(y0+1, src.Height-1)
		for x := 0; x < w; x++ {
			x0 := 2 * x
			x1 := min(x0+1, src.Width-1)

			a := y0*stride + x0*BytesPerTexel
			b := y0*stride + x1*BytesPerTexel
			c := y1*stride + x0*BytesPerTexel
			d := y1*stride + x1*BytesPerTexel
			o := (y*w + x) * BytesPerTexel
			for ch := 0; ch < BytesPerTexel; ch++ {
				sum := uint(src.Pixels[a+ch]) + uint(src.Pixels[b+ch]) + uint(src.Pixels[c+ch]) + uint(src.Pixels[d+ch])
				dst.Pixels[o+ch] = byte((sum + 2) / 4)
			}
		}
	}
	return dst
}

// Concat joins mip levels into one payload, base level first.
func Concat(levels []Level) []byte {
	n := 0
	for _, l := range levels {
		n += len(l.Pixels)
	}
	out := make([]byte, 0, n)
	for _, l := range levels {
		out = append(out, l.Pixels...)
	}
	return out
}

// Split slices a concatenated chain back into levels without copying.
func Split(chain []byte, width, height int) ([]Level, error) {
	if want := ChainSize(width, height); len(chain) != want {
		return nil, fmt.Errorf("mip chain is %d bytes, want %d for %dx%d", len(chain), want, width, height)
	}
	levels := make([]Level, 0, LevelCount(width, height))
	off := 0
	for range LevelCount(width, height) {
		n := width * height * BytesPerTexel
		levels = append(levels, Level{Width: width, Height: height, Pixels: chain[off : off+n : off+n]})
		off += n
		width, height = max(1, width/2), max(1, height/2)
	}
	return levels, nil
}
