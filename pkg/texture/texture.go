// Package texture bakes source images into TEXI containers holding a full RGBA8 mip chain,
// and loads them back for the renderer.
package texture

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/Faultbox/kiln/pkg/container"
	"github.com/Faultbox/kiln/pkg/encoding"
)

// ErrDecode is returned when a source image cannot be decoded.
var ErrDecode = errors.New("texture decode error")

// Version is the TEXI container version written by this package.
const Version = 1

// Format tags the pixel encoding of a baked texture.
type Format string

// Pixel formats.
const (
	FormatRGBA8Unorm Format = "rgba8_unorm"
	FormatRGBA8SRGB  Format = "rgba8_srgb"
)

// DefaultSRGBSuffixes mark color (albedo) textures by file name.
var DefaultSRGBSuffixes = []string{"_albedo", "_diffuse", "_diff", "_basecolor", "_color"}

// Options controls a texture bake.
type Options struct {
	// SRGBSuffixes overrides DefaultSRGBSuffixes when non-nil.
	SRGBSuffixes []string
	// MagentaKey turns magenta texels transparent before mips are built.
	MagentaKey bool
	// Source is recorded as provenance. Defaults to the image path.
	Source string
}

// Metadata is the YAML document stored in a TEXI container.
type Metadata struct {
	Name        string                `yaml:"name"`
	AssetID     string                `yaml:"asset_id"`
	Format      Format                `yaml:"format"`
	Width       int                   `yaml:"width"`
	Height      int                   `yaml:"height"`
	MipLevels   int                   `yaml:"mip_levels"`
	Size        int                   `yaml:"size"`
	Source      string                `yaml:"source"`
	Compression container.Compression `yaml:"compression"`
}

// Asset is a baked texture ready to be written.
type Asset struct {
	Metadata Metadata
	Levels   []Level
}

// ClassifyFormat applies the file-name heuristic: a stem ending in one of suffixes is
// color data stored as sRGB, anything else is linear.
func ClassifyFormat(path string, suffixes []string) Format {
	return classifyName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), suffixes)
}

func classifyName(stem string, suffixes []string) Format {
	stem = strings.ToLower(stem)
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(stem, strings.ToLower(s)) {
			return FormatRGBA8SRGB
		}
	}
	return FormatRGBA8Unorm
}

// Bake decodes the image at imagePath and builds its mip chain.
func Bake(imagePath string, opts Options) (*Asset, error) {
	img, err := DecodeFile(imagePath)
	if err != nil {
		return nil, err
	}
	if opts.Source == "" {
		opts.Source = imagePath
	}
	name := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	return BakeImage(img, name, opts)
}

// BakeImage builds a texture asset from an already decoded image. The color space is
// classified from name.
func BakeImage(img image.Image, name string, opts Options) (*Asset, error) {
	pix := ToNRGBA(img)
	if opts.MagentaKey {
		ApplyMagentaKey(pix)
	}

	w, h := pix.Rect.Dx(), pix.Rect.Dy()
	levels, err := GenerateMips(pix.Pix, w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	suffixes := opts.SRGBSuffixes
	if suffixes == nil {
		suffixes = DefaultSRGBSuffixes
	}
	name = encoding.NormalizeName(name)
	source := encoding.NormalizePath(opts.Source)

	return &Asset{
		Metadata: Metadata{
			Name:        name,
			AssetID:     container.AssetID(source, name),
			Format:      classifyName(name, suffixes),
			Width:       w,
			Height:      h,
			MipLevels:   len(levels),
			Size:        ChainSize(w, h),
			Source:      source,
			Compression: container.CompressionNone,
		},
		Levels: levels,
	}, nil
}

// Container packs the asset, compressing the mip chain with mode.
func (a *Asset) Container(mode container.Compression) (*container.Container, error) {
	payload, err := container.PackPayload(mode, Concat(a.Levels))
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", a.Metadata.Name, err)
	}
	meta := a.Metadata
	meta.Compression = mode
	if meta.Compression == "" {
		meta.Compression = container.CompressionNone
	}
	return container.New(container.KindTexture, Version, meta, payload)
}

// Write stores the asset as a TEXI container at path.
func (a *Asset) Write(path string, mode container.Compression) error {
	c, err := a.Container(mode)
	if err != nil {
		return err
	}
	return container.Write(path, c)
}

// Texture is a loaded texture: every mip level as its own pixel slice.
type Texture struct {
	Metadata Metadata
	Levels   []Level
}

// Format returns the pixel format.
func (t *Texture) Format() Format { return t.Metadata.Format }

// MipCount returns the number of levels.
func (t *Texture) MipCount() int { return len(t.Levels) }

// Load reads a TEXI container and splits its payload into mip levels.
func Load(path string) (*Texture, error) {
	c, err := container.Read(path)
	if err != nil {
		return nil, err
	}
	t, err := FromContainer(c)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return t, nil
}

// FromContainer validates and unpacks an in-memory TEXI container.
func FromContainer(c *container.Container) (*Texture, error) {
	if err := c.Expect(container.KindTexture, Version); err != nil {
		return nil, err
	}
	var meta Metadata
	if err := c.DecodeMetadata(&meta); err != nil {
		return nil, err
	}
	switch meta.Format {
	case FormatRGBA8Unorm, FormatRGBA8SRGB:
	default:
		return nil, fmt.Errorf("%w: unknown texture format %q", container.ErrCorrupt, meta.Format)
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("%w: texture size %dx%d", container.ErrCorrupt, meta.Width, meta.Height)
	}
	if meta.MipLevels != LevelCount(meta.Width, meta.Height) {
		return nil, fmt.Errorf("%w: %d mip levels for %dx%d", container.ErrCorrupt, meta.MipLevels, meta.Width, meta.Height)
	}

	raw, err := container.UnpackPayload(meta.Compression, c.Payload, meta.Size)
	if err != nil {
		return nil, err
	}
	if len(raw) != meta.Size {
		return nil, fmt.Errorf("%w: texture payload is %d bytes, metadata says %d", container.ErrCorrupt, len(raw), meta.Size)
	}
	levels, err := Split(raw, meta.Width, meta.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrCorrupt, err)
	}
	return &Texture{Metadata: meta, Levels: levels}, nil
}
