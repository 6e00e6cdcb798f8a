package skeleton

import (
	"fmt"

	"github.com/Faultbox/kiln/pkg/container"
)

// Container encodes the asset into a SKEL container, compressing the sections with mode.
// Section sizes in the metadata refer to the uncompressed payload.
func (a *Asset) Container(mode container.Compression) (*container.Container, error) {
	nodes, skins, anims := a.MarshalSections()

	raw := make([]byte, 0, len(nodes)+len(skins)+len(anims))
	raw = append(raw, nodes...)
	raw = append(raw, skins...)
	raw = append(raw, anims...)

	payload, err := container.PackPayload(mode, raw)
	if err != nil {
		return nil, fmt.Errorf("skeleton %s: %w", a.Metadata.Name, err)
	}

	meta := a.Metadata
	meta.NodeCount = len(a.Nodes)
	meta.SkinCount = len(a.Skins)
	meta.AnimationCount = len(a.Animations)
	meta.NodesSize = len(nodes)
	meta.SkinsSize = len(skins)
	meta.AnimationsSize = len(anims)
	meta.Compression = mode
	if meta.Compression == "" {
		meta.Compression = container.CompressionNone
	}
	return container.New(container.KindSkeleton, Version, meta, payload)
}

// Write stores the asset as a SKEL container at path.
func (a *Asset) Write(path string, mode container.Compression) error {
	c, err := a.Container(mode)
	if err != nil {
		return err
	}
	return container.Write(path, c)
}

// Load reads and validates a SKEL container.
func Load(path string) (*Asset, error) {
	c, err := container.Read(path)
	if err != nil {
		return nil, err
	}
	a, err := FromContainer(c)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return a, nil
}

// FromContainer decodes and validates an in-memory SKEL container.
func FromContainer(c *container.Container) (*Asset, error) {
	if err := c.Expect(container.KindSkeleton, Version); err != nil {
		return nil, err
	}
	a := &Asset{}
	if err := c.DecodeMetadata(&a.Metadata); err != nil {
		return nil, err
	}
	m := a.Metadata
	if m.NodesSize < 0 || m.SkinsSize < 0 || m.AnimationsSize < 0 {
		return nil, fmt.Errorf("%w: negative section size", container.ErrCorrupt)
	}

	raw, err := container.UnpackPayload(m.Compression, c.Payload, m.NodesSize+m.SkinsSize+m.AnimationsSize)
	if err != nil {
		return nil, err
	}
	if total := m.NodesSize + m.SkinsSize + m.AnimationsSize; total != len(raw) {
		return nil, fmt.Errorf("%w: sections sum to %d bytes, payload is %d", container.ErrCorrupt, total, len(raw))
	}

	nodes := raw[:m.NodesSize]
	skins := raw[m.NodesSize : m.NodesSize+m.SkinsSize]
	anims := raw[m.NodesSize+m.SkinsSize:]
	if err := a.UnmarshalSections(nodes, skins, anims); err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrCorrupt, err)
	}

	if len(a.Nodes) != m.NodeCount || len(a.Skins) != m.SkinCount || len(a.Animations) != m.AnimationCount {
		return nil, fmt.Errorf("%w: section counts disagree with metadata", container.ErrCorrupt)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrCorrupt, err)
	}
	return a, nil
}
