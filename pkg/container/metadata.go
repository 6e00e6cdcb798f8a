package container

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// New builds a container whose metadata is meta serialized as YAML.
func New(kind Kind, version uint32, meta any, payload []byte) (*Container, error) {
	doc, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s metadata: %w", kind, err)
	}
	return &Container{
		Kind:     kind,
		Version:  version,
		Metadata: doc,
		Payload:  payload,
	}, nil
}

// DecodeMetadata unmarshals the metadata document into v.
func (c *Container) DecodeMetadata(v any) error {
	if err := yaml.Unmarshal(c.Metadata, v); err != nil {
		return fmt.Errorf("%w: %s metadata: %w", ErrCorrupt, c.Kind, err)
	}
	return nil
}

// Expect checks that c holds the wanted kind at a version the caller understands.
func (c *Container) Expect(kind Kind, version uint32) error {
	if c.Kind != kind {
		return fmt.Errorf("%w: expected %s container, got %s", ErrCorrupt, kind, c.Kind)
	}
	if c.Version != version {
		return fmt.Errorf("%w: unsupported %s version %d", ErrCorrupt, kind, c.Version)
	}
	return nil
}
