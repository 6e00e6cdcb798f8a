package texture

import (
	"fmt"
	"image"
)

// TGA image types handled by DecodeTGA.
const (
	TGATypeUncompressed = 2  // uncompressed true-color
	TGATypeGray         = 3  // uncompressed grayscale
	TGATypeRLE          = 10 // RLE true-color
	TGATypeRLEGray      = 11 // RLE grayscale
)

const tgaHeaderSize = 18

// DecodeTGA decodes a TGA image into straight-alpha NRGBA.
// Supports true-color (24/32 bpp) and grayscale (8 bpp) images, raw or RLE compressed.
// Color-mapped images are rejected.
func DecodeTGA(data []byte) (*image.NRGBA, error) {
	if len(data) < tgaHeaderSize {
		return nil, fmt.Errorf("TGA data too short")
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}

	gray := imageType == TGATypeGray || imageType == TGATypeRLEGray
	switch imageType {
	case TGATypeUncompressed, TGATypeRLE:
		if bpp != 24 && bpp != 32 {
			return nil, fmt.Errorf("unsupported TGA bit depth %d", bpp)
		}
	case TGATypeGray, TGATypeRLEGray:
		if bpp != 8 {
			return nil, fmt.Errorf("unsupported grayscale TGA bit depth %d", bpp)
		}
	default:
		return nil, fmt.Errorf("unsupported TGA type %d", imageType)
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("TGA has zero dimension %dx%d", width, height)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("TGA data truncated")
	}

	d := tgaDecoder{
		img:         image.NewNRGBA(image.Rect(0, 0, width, height)),
		src:         data[offset:],
		bpp:         bpp / 8,
		gray:        gray,
		topToBottom: descriptor&0x20 != 0,
	}

	var err error
	if imageType == TGATypeRLE || imageType == TGATypeRLEGray {
		err = d.decodeRLE()
	} else {
		err = d.decodeRaw()
	}
	if err != nil {
		return nil, err
	}
	return d.img, nil
}

type tgaDecoder struct {
	img         *image.NRGBA
	src         []byte
	pos         int
	bpp         int
	gray        bool
	topToBottom bool
}

// pixel reads one source pixel in BGR(A) or gray order.
func (d *tgaDecoder) pixel() ([4]byte, error) {
	if d.pos+d.bpp > len(d.src) {
		return [4]byte{}, fmt.Errorf("TGA pixel data truncated")
	}
	p := d.src[d.pos : d.pos+d.bpp]
	d.pos += d.bpp

	if d.gray {
		return [4]byte{p[0], p[0], p[0], 255}, nil
	}
	c := [4]byte{p[2], p[1], p[0], 255}
	if d.bpp == 4 {
		c[3] = p[3]
	}
	return c, nil
}

// set stores c at the n-th pixel in file order.
func (d *tgaDecoder) set(n int, c [4]byte) {
	w := d.img.Rect.Dx()
	h := d.img.Rect.Dy()
	x := n % w
	y := n / w
	if !d.topToBottom {
		y = h - 1 - y
	}
	i := d.img.PixOffset(x, y)
	copy(d.img.Pix[i:i+4], c[:])
}

func (d *tgaDecoder) decodeRaw() error {
	count := d.img.Rect.Dx() * d.img.Rect.Dy()
	for n := 0; n < count; n++ {
		c, err := d.pixel()
		if err != nil {
			return err
		}
		d.set(n, c)
	}
	return nil
}

func (d *tgaDecoder) decodeRLE() error {
	count := d.img.Rect.Dx() * d.img.Rect.Dy()
	n := 0
	for n < count {
		if d.pos >= len(d.src) {
			return fmt.Errorf("TGA RLE data truncated at pixel %d of %d", n, count)
		}
		packet := d.src[d.pos]
		d.pos++
		run := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			c, err := d.pixel()
			if err != nil {
				return err
			}
			for i := 0; i < run && n < count; i++ {
				d.set(n, c)
				n++
			}
			continue
		}

		for i := 0; i < run && n < count; i++ {
			c, err := d.pixel()
			if err != nil {
				return err
			}
			d.set(n, c)
			n++
		}
	}
	return nil
}

// IsMagentaKey reports whether an RGB color matches the magenta transparency key.
// Uses a tolerance (R >= 250, G <= 10, B >= 250) to absorb lossy source encodings.
func IsMagentaKey(r, g, b uint8) bool {
	return r >= 250 && g <= 10 && b >= 250
}

// ApplyMagentaKey makes magenta pixels transparent black in place.
func ApplyMagentaKey(img *image.NRGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			if IsMagentaKey(img.Pix[i], img.Pix[i+1], img.Pix[i+2]) {
				img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 0, 0, 0, 0
			}
		}
	}
}
