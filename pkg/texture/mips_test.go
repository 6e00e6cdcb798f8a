package texture

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelCount(t *testing.T) {
	tests := []struct {
		w, h, want int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{4, 4, 3},
		{5, 3, 3},
		{256, 256, 9},
		{1024, 16, 11},
		{1, 1000, 10},
		{0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelCount(tt.w, tt.h), "%dx%d", tt.w, tt.h)
	}
}

func TestGenerateMipsShape(t *testing.T) {
	sizes := [][2]int{{1, 1}, {8, 8}, {7, 3}, {16, 1}, {3, 17}, {64, 32}}
	for _, sz := range sizes {
		w, h := sz[0], sz[1]
		pix := make([]byte, w*h*BytesPerTexel)
		for i := range pix {
			pix[i] = byte(i * 31)
		}

		levels, err := GenerateMips(pix, w, h)
		require.NoError(t, err)
		require.Len(t, levels, LevelCount(w, h))

		last := levels[len(levels)-1]
		assert.Equal(t, 1, last.Width)
		assert.Equal(t, 1, last.Height)

		total := 0
		for _, l := range levels {
			assert.Len(t, l.Pixels, 4*l.Width*l.Height)
			total += 4 * l.Width * l.Height
		}
		assert.Equal(t, ChainSize(w, h), total)
		assert.Len(t, Concat(levels), total)
	}
}

func TestGenerateMipsBoxFilter(t *testing.T) {
	// 2x2 -> 1x1 averages all four texels with rounding.
	pix := []byte{
		0, 10, 255, 255, 1, 20, 255, 255,
		2, 30, 0, 255, 4, 41, 0, 0,
	}
	levels, err := GenerateMips(pix, 2, 2)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	// (0+1+2+4+2)/4 = 2, (10+20+30+41+2)/4 = 25, (510+2)/4 = 128, (765+2)/4 = 191
	assert.Equal(t, []byte{2, 25, 128, 191}, levels[1].Pixels)
}

func TestGenerateMipsReproducible(t *testing.T) {
	pix := make([]byte, 33*17*4)
	for i := range pix {
		pix[i] = byte(i*7 + i/13)
	}
	a, err := GenerateMips(pix, 33, 17)
	require.NoError(t, err)
	b, err := GenerateMips(bytes.Clone(pix), 33, 17)
	require.NoError(t, err)
	assert.Equal(t, Concat(a), Concat(b))
}

func TestGenerateMipsRejectsBadInput(t *testing.T) {
	_, err := GenerateMips(make([]byte, 10), 2, 2)
	assert.Error(t, err)
	_, err = GenerateMips(nil, 0, 4)
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	levels, err := GenerateMips(make([]byte, 4*4*4), 4, 4)
	require.NoError(t, err)

	got, err := Split(Concat(levels), 4, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[1].Width)
	assert.Len(t, got[2].Pixels, 4)

	_, err = Split(make([]byte, 5), 4, 4)
	assert.Error(t, err)
}
