// Package assets loads animation assets from clip directories: manifests,
// meshes and clips parsed in the background.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrClipNotFound is returned when no clip directory holds a requested file.
var ErrClipNotFound = errors.New("asset not found")

// Manager resolves asset paths against clip directories and caches file
// contents.
type Manager struct {
	dirs  []string
	cache *Cache
	// keys maps requested paths to the resolved paths their data is cached under
	keys map[string]string
	mu   sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
		keys:  make(map[string]string),
	}
}

// AddDir adds a clip directory to the manager.
// Directories are searched in reverse order (last added = highest priority).
func (m *Manager) AddDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving clip dir %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("opening clip dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("clip dir %s is not a directory", dir)
	}

	m.mu.Lock()
	if !slices.Contains(m.dirs, abs) {
		m.dirs = append(m.dirs, abs)
	}
	m.mu.Unlock()

	return nil
}

// Dirs returns the clip directories in search order, highest priority last.
func (m *Manager) Dirs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.dirs...)
}

// Resolve returns the absolute path of an asset. Absolute paths are used as
// given; relative ones are looked up in the clip directories, then in the
// working directory.
func (m *Manager) Resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrClipNotFound, path)
		}
		return filepath.Clean(path), nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.dirs) - 1; i >= 0; i-- {
		candidate := filepath.Join(m.dirs[i], path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrClipNotFound, path)
}

// Load reads an asset, serving repeated reads from the cache.
func (m *Manager) Load(path string) ([]byte, error) {
	resolved, err := m.Resolve(path)
	if err != nil {
		return nil, err
	}

	// Check cache first
	if data, ok := m.cache.Get(resolved); ok {
		return data, nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", resolved, err)
	}
	m.mu.Lock()
	m.keys[path] = resolved
	m.mu.Unlock()
	m.cache.Set(resolved, data)
	return data, nil
}

// Invalidate drops a cached asset so the next Load rereads it. It works
// from the path the asset was loaded with even after the file is gone.
func (m *Manager) Invalidate(path string) {
	m.mu.Lock()
	key, ok := m.keys[path]
	delete(m.keys, path)
	m.mu.Unlock()

	if !ok {
		key = filepath.Clean(path)
		if resolved, err := m.Resolve(path); err == nil {
			key = resolved
		}
	}
	m.cache.Delete(key)
}

// Cache returns the manager's cache.
func (m *Manager) Cache() *Cache { return m.cache }

// Close forgets all directories and cached data.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirs = nil
	clear(m.keys)
	m.cache.Clear()
}

// Cache is a simple in-memory cache for loaded assets.
type Cache struct {
	data map[string][]byte
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Delete removes an item from cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
