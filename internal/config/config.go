// Package config handles baker configuration loading and management.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Faultbox/kiln/internal/logger"
	"github.com/Faultbox/kiln/pkg/container"
	"github.com/Faultbox/kiln/pkg/mesh"
	"github.com/Faultbox/kiln/pkg/texture"
)

// Config holds all kiln settings.
type Config struct {
	Bake    BakeConfig    `yaml:"bake"`
	Texture TextureConfig `yaml:"texture"`
	Logging LoggingConfig `yaml:"logging"`
}

// BakeConfig holds pipeline settings.
type BakeConfig struct {
	Workers           int      `yaml:"workers"`
	Compression       string   `yaml:"compression"`
	Progress          bool     `yaml:"progress"`
	TextureExtensions []string `yaml:"texture_extensions"`
	SceneExtensions   []string `yaml:"scene_extensions"`
}

// TextureConfig holds texture baker settings.
type TextureConfig struct {
	SRGBSuffixes []string `yaml:"srgb_suffixes"`
	MagentaKey   bool     `yaml:"magenta_key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Bake: BakeConfig{
			Workers:           runtime.NumCPU(),
			Compression:       string(container.CompressionLZ4),
			Progress:          true,
			TextureExtensions: append([]string(nil), texture.Extensions...),
			SceneExtensions:   append([]string(nil), mesh.Extensions...),
		},
		Texture: TextureConfig{
			SRGBSuffixes: append([]string(nil), texture.DefaultSRGBSuffixes...),
			MagentaKey:   false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	if c.Bake.Workers < 1 {
		return fmt.Errorf("bake.workers must be at least 1, got %d", c.Bake.Workers)
	}
	if _, err := container.ParseCompression(c.Bake.Compression); err != nil {
		return fmt.Errorf("bake.compression: %w", err)
	}
	for _, ext := range append(append([]string(nil), c.Bake.TextureExtensions...), c.Bake.SceneExtensions...) {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// CompressionMode returns the validated payload compression.
func (c *Config) CompressionMode() container.Compression {
	mode, err := container.ParseCompression(c.Bake.Compression)
	if err != nil {
		return container.CompressionNone
	}
	return mode
}
