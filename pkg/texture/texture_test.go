package texture

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/kiln/pkg/container"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 200})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestClassifyFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"rock_albedo.png", FormatRGBA8SRGB},
		{"dir/Rock_BaseColor.TGA", FormatRGBA8SRGB},
		{"wood_diff.jpg", FormatRGBA8SRGB},
		{"rock_normal.png", FormatRGBA8Unorm},
		{"albedo_rock.png", FormatRGBA8Unorm},
		{"rough.png", FormatRGBA8Unorm},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyFormat(tt.path, DefaultSRGBSuffixes), tt.path)
	}
	assert.Equal(t, FormatRGBA8SRGB, ClassifyFormat("x_col.png", []string{"_col"}))
}

func TestBakeWriteLoad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "brick_albedo.png")
	writePNG(t, src, 16, 8)

	for _, mode := range []container.Compression{container.CompressionNone, container.CompressionLZ4} {
		t.Run(string(mode), func(t *testing.T) {
			asset, err := Bake(src, Options{Source: "textures/brick_albedo.png"})
			require.NoError(t, err)

			meta := asset.Metadata
			assert.Equal(t, "brick_albedo", meta.Name)
			assert.Equal(t, FormatRGBA8SRGB, meta.Format)
			assert.Equal(t, 16, meta.Width)
			assert.Equal(t, 8, meta.Height)
			assert.Equal(t, 5, meta.MipLevels)
			assert.Equal(t, ChainSize(16, 8), meta.Size)
			assert.Equal(t, "textures/brick_albedo.png", meta.Source)
			assert.NotEmpty(t, meta.AssetID)

			out := filepath.Join(dir, string(mode), "brick_albedo.texi")
			require.NoError(t, asset.Write(out, mode))

			tex, err := Load(out)
			require.NoError(t, err)
			assert.Equal(t, mode, tex.Metadata.Compression)
			assert.Equal(t, 5, tex.MipCount())
			assert.Equal(t, FormatRGBA8SRGB, tex.Format())
			assert.Equal(t, Concat(asset.Levels), Concat(tex.Levels))

			// Base texel (3, 2): straight alpha survives decoding.
			base := tex.Levels[0]
			i := (2*base.Width + 3) * 4
			assert.Equal(t, []byte{48, 32, 128, 200}, base.Pixels[i:i+4])
		})
	}
}

func TestBakeDecodeError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0644))

	_, err := Bake(src, Options{})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = Bake(filepath.Join(dir, "missing.png"), Options{})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestBakeImageMagentaKey(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 255, A: 255})

	asset, err := BakeImage(img, "sprite", Options{MagentaKey: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, asset.Levels[0].Pixels)
	assert.Equal(t, FormatRGBA8Unorm, asset.Metadata.Format)
}

func TestToNRGBAOffsetBounds(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.SetNRGBA(2, 3, color.NRGBA{R: 9, G: 8, B: 7, A: 6})
	sub := src.SubImage(image.Rect(2, 2, 4, 4))

	got := ToNRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
	assert.Equal(t, color.NRGBA{R: 9, G: 8, B: 7, A: 6}, got.NRGBAAt(0, 1))

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.Pix[0] = 100
	assert.Equal(t, color.NRGBA{R: 100, G: 100, B: 100, A: 255}, ToNRGBA(gray).NRGBAAt(0, 0))
}

func TestLoadRejectsWrongKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.texi")
	require.NoError(t, container.Write(path, &container.Container{Kind: container.KindMesh, Version: Version}))

	_, err := Load(path)
	assert.ErrorIs(t, err, container.ErrCorrupt)
}

func TestLoadRejectsSizeMismatch(t *testing.T) {
	asset, err := BakeImage(image.NewNRGBA(image.Rect(0, 0, 2, 2)), "t", Options{})
	require.NoError(t, err)
	c, err := asset.Container(container.CompressionNone)
	require.NoError(t, err)
	c.Payload = c.Payload[:len(c.Payload)-4]

	_, err = FromContainer(c)
	assert.ErrorIs(t, err, container.ErrCorrupt)
}
