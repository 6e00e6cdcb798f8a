package mesh

import "fmt"

// VertexFormat is one of the fixed interleaved vertex layouts.
//
// Attribute order within a vertex is always:
// position (3 x f32), normal (3 x f32), tangent (4 x f32, optional), texcoord (2 x f32),
// joints (4 x u16, optional), weights (4 x f32, optional).
type VertexFormat uint8

// Vertex formats.
const (
	FormatPNV    VertexFormat = iota // position, normal, texcoord
	FormatPNTV                       // + tangent
	FormatPNVIW                      // + joint indices and weights
	FormatPNTVIW                     // + tangent, joint indices and weights
)

var formatNames = [...]string{
	FormatPNV:    "PNV",
	FormatPNTV:   "PNTV",
	FormatPNVIW:  "PNVIW",
	FormatPNTVIW: "PNTVIW",
}

// Capabilities are the optional attribute groups a primitive provides.
type Capabilities struct {
	HasTangent bool
	HasSkin    bool
}

// FormatFor picks the layout that carries exactly the given capabilities.
func FormatFor(c Capabilities) VertexFormat {
	switch {
	case c.HasTangent && c.HasSkin:
		return FormatPNTVIW
	case c.HasSkin:
		return FormatPNVIW
	case c.HasTangent:
		return FormatPNTV
	}
	return FormatPNV
}

// Capabilities returns the optional attribute groups present in f.
func (f VertexFormat) Capabilities() Capabilities {
	return Capabilities{
		HasTangent: f == FormatPNTV || f == FormatPNTVIW,
		HasSkin:    f == FormatPNVIW || f == FormatPNTVIW,
	}
}

// Stride returns the byte size of one vertex.
func (f VertexFormat) Stride() int {
	c := f.Capabilities()
	n := 12 + 12 + 8
	if c.HasTangent {
		n += 16
	}
	if c.HasSkin {
		n += 8 + 16
	}
	return n
}

// Valid reports whether f is a known format.
func (f VertexFormat) Valid() bool {
	return int(f) < len(formatNames)
}

func (f VertexFormat) String() string {
	if !f.Valid() {
		return fmt.Sprintf("VertexFormat(%d)", uint8(f))
	}
	return formatNames[f]
}

// ParseVertexFormat converts a format tag back into a VertexFormat.
func ParseVertexFormat(s string) (VertexFormat, error) {
	for i, name := range formatNames {
		if name == s {
			return VertexFormat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown vertex format %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f VertexFormat) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid vertex format %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *VertexFormat) UnmarshalText(b []byte) error {
	v, err := ParseVertexFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// IndexSize returns the smallest index element size (1, 2 or 4 bytes) that can address
// vertexCount vertices.
func IndexSize(vertexCount int) int {
	switch {
	case vertexCount <= 1<<8:
		return 1
	case vertexCount <= 1<<16:
		return 2
	}
	return 4
}
