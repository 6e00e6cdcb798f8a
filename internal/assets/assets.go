// Package assets handles loading and caching of baked containers at runtime.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Faultbox/kiln/internal/logger"
	"github.com/Faultbox/kiln/pkg/math"
	"github.com/Faultbox/kiln/pkg/mesh"
	"github.com/Faultbox/kiln/pkg/rig"
	"github.com/Faultbox/kiln/pkg/skeleton"
	"github.com/Faultbox/kiln/pkg/texture"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no root holds the requested asset.
var ErrNotFound = errors.New("asset not found")

// Manager resolves baked asset names against a list of output roots.
type Manager struct {
	roots []string
	cache *Cache
	mu    sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// AddRoot adds a baked output directory to the manager.
// Roots are searched in reverse order (last added = highest priority).
func (m *Manager) AddRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("adding root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding root %s: not a directory", dir)
	}

	m.mu.Lock()
	m.roots = append(m.roots, dir)
	m.mu.Unlock()

	return nil
}

// Resolve returns the file path for a root-relative asset name.
func (m *Manager) Resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return name, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.roots) - 1; i >= 0; i-- {
		path := filepath.Join(m.roots[i], filepath.FromSlash(name))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// load resolves name and decodes it with fn, caching the result by path.
func (m *Manager) load(name string, fn func(path string) (any, error)) (any, error) {
	path, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}
	if v, ok := m.cache.Get(path); ok {
		return v, nil
	}

	v, err := fn(path)
	if err != nil {
		logger.Warn("asset load failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	m.cache.Set(path, v)
	logger.Debug("asset loaded", zap.String("path", path))
	return v, nil
}

// LoadMesh loads a MESH container.
func (m *Manager) LoadMesh(name string) (*mesh.Mesh, error) {
	v, err := m.load(name, func(path string) (any, error) { return mesh.Load(path) })
	if err != nil {
		return nil, err
	}
	msh, ok := v.(*mesh.Mesh)
	if !ok {
		return nil, fmt.Errorf("%s is cached as %T, not a mesh", name, v)
	}
	return msh, nil
}

// LoadTexture loads a TEXI container.
func (m *Manager) LoadTexture(name string) (*texture.Texture, error) {
	v, err := m.load(name, func(path string) (any, error) { return texture.Load(path) })
	if err != nil {
		return nil, err
	}
	tex, ok := v.(*texture.Texture)
	if !ok {
		return nil, fmt.Errorf("%s is cached as %T, not a texture", name, v)
	}
	return tex, nil
}

// SkeletonAsset loads a SKEL container. The returned asset is shared and must not be mutated.
func (m *Manager) SkeletonAsset(name string) (*skeleton.Asset, error) {
	v, err := m.load(name, func(path string) (any, error) { return skeleton.Load(path) })
	if err != nil {
		return nil, err
	}
	skel, ok := v.(*skeleton.Asset)
	if !ok {
		return nil, fmt.Errorf("%s is cached as %T, not a skeleton", name, v)
	}
	return skel, nil
}

// LoadSkeleton loads a skeleton and builds a fresh evaluation graph for it.
// Each call returns an independent pose over the same cached asset.
func (m *Manager) LoadSkeleton(name string) (*rig.Graph, error) {
	skel, err := m.SkeletonAsset(name)
	if err != nil {
		return nil, err
	}
	return rig.NewGraph(skel)
}

// EvaluateJoints computes the joint matrices of a skin for a mesh placed at world.
func (m *Manager) EvaluateJoints(g *rig.Graph, skin int, world math.Mat4) rig.JointMatrices {
	return g.EvaluateJoints(skin, world)
}

// Stats returns cache statistics.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

// Close drops all roots and cached assets.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roots = nil
	m.cache.Clear()
}

// Cache is a simple in-memory cache for decoded assets.
type Cache struct {
	data map[string]any
	mu   sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]any),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = v
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]any)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
