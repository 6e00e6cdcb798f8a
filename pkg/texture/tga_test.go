package texture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tgaHeader(imageType byte, w, h int, bpp byte, descriptor byte) []byte {
	hdr := make([]byte, tgaHeaderSize)
	hdr[2] = imageType
	hdr[12], hdr[13] = byte(w), byte(w>>8)
	hdr[14], hdr[15] = byte(h), byte(h>>8)
	hdr[16] = bpp
	hdr[17] = descriptor
	return hdr
}

func TestDecodeTGAUncompressedBottomUp(t *testing.T) {
	// 2x2, 24 bpp, rows stored bottom row first.
	data := tgaHeader(TGATypeUncompressed, 2, 2, 24, 0)
	data = append(data,
		0, 0, 255, 0, 255, 0, // bottom: red, green
		255, 0, 0, 255, 255, 255, // top: blue, white
	)

	img, err := DecodeTGA(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pix[img.PixOffset(0, 0):img.PixOffset(0, 0)+4])
	assert.Equal(t, []byte{255, 255, 255, 255}, img.Pix[img.PixOffset(1, 0):img.PixOffset(1, 0)+4])
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pix[img.PixOffset(0, 1):img.PixOffset(0, 1)+4])
	assert.Equal(t, []byte{0, 255, 0, 255}, img.Pix[img.PixOffset(1, 1):img.PixOffset(1, 1)+4])
}

func TestDecodeTGARLE(t *testing.T) {
	// 3x1, 32 bpp, top-to-bottom: run of 2 then one raw texel.
	data := tgaHeader(TGATypeRLE, 3, 1, 32, 0x20)
	data = append(data,
		0x81, 10, 20, 30, 40,
		0x00, 1, 2, 3, 4,
	)

	img, err := DecodeTGA(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{30, 20, 10, 40, 30, 20, 10, 40, 3, 2, 1, 4}, img.Pix)
}

func TestDecodeTGAGray(t *testing.T) {
	data := tgaHeader(TGATypeGray, 1, 1, 8, 0x20)
	data = append(data, 77)

	img, err := DecodeTGA(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{77, 77, 77, 255}, img.Pix)
}

func TestDecodeTGAErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{0, 0, 2}},
		{"color mapped", func() []byte { h := tgaHeader(TGATypeUncompressed, 1, 1, 24, 0); h[1] = 1; return h }()},
		{"bad type", tgaHeader(1, 1, 1, 24, 0)},
		{"bad depth", tgaHeader(TGATypeUncompressed, 1, 1, 16, 0)},
		{"zero size", tgaHeader(TGATypeUncompressed, 0, 1, 24, 0)},
		{"truncated raw", append(tgaHeader(TGATypeUncompressed, 2, 1, 24, 0), 1, 2, 3)},
		{"truncated rle", append(tgaHeader(TGATypeRLE, 4, 1, 24, 0), 0x81, 1, 2, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTGA(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestApplyMagentaKey(t *testing.T) {
	data := tgaHeader(TGATypeUncompressed, 2, 1, 24, 0x20)
	data = append(data, 252, 5, 255, 10, 20, 30)

	img, err := DecodeTGA(data)
	require.NoError(t, err)
	ApplyMagentaKey(img)
	assert.Equal(t, []byte{0, 0, 0, 0, 30, 20, 10, 255}, img.Pix)
}
